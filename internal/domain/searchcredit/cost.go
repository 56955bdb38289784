package searchcredit

// Quote is the incremental price of a submission given what the session already paid for.
type Quote struct {
	Active []Dimension `json:"active"`
	Charge []Dimension `json:"charge"`
	Cost   int         `json:"cost"`
}

// Free reports whether the submission can proceed without touching the balance.
func (q Quote) Free() bool {
	return q.Cost == 0
}

// QuoteFor prices the active dimensions against an entitlement snapshot.
// Only dimensions not yet paid in the session are charged.
func QuoteFor(active []Dimension, paid Entitlements) Quote {
	q := Quote{Active: active, Charge: make([]Dimension, 0, len(active))}
	for _, d := range active {
		if !paid.Paid(d) {
			q.Charge = append(q.Charge, d)
		}
	}
	q.Cost = len(q.Charge) * CreditsPerDimension
	return q
}
