package searchcredit

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Entitlements records which premium dimensions a search session has paid for.
// Flags only move from false to true until Reset.
type Entitlements struct {
	Platforms       bool `json:"platforms"`
	ABCRequired     bool `json:"abc_required"`
	HUDKeyRequired  bool `json:"hud_key_required"`
	InspectionTypes bool `json:"inspection_types"`
}

// Paid reports whether d is already paid for.
func (e Entitlements) Paid(d Dimension) bool {
	switch d {
	case DimensionPlatforms:
		return e.Platforms
	case DimensionABCRequired:
		return e.ABCRequired
	case DimensionHUDKeyRequired:
		return e.HUDKeyRequired
	case DimensionInspectionTypes:
		return e.InspectionTypes
	}
	return false
}

// MarkPaid sets every given dimension to paid.
func (e *Entitlements) MarkPaid(ds ...Dimension) {
	for _, d := range ds {
		switch d {
		case DimensionPlatforms:
			e.Platforms = true
		case DimensionABCRequired:
			e.ABCRequired = true
		case DimensionHUDKeyRequired:
			e.HUDKeyRequired = true
		case DimensionInspectionTypes:
			e.InspectionTypes = true
		}
	}
}

// Reset clears every flag.
func (e *Entitlements) Reset() {
	*e = Entitlements{}
}

// PaidDimensions lists the paid dimensions in charge order.
func (e Entitlements) PaidDimensions() []Dimension {
	out := make([]Dimension, 0, len(Dimensions))
	for _, d := range Dimensions {
		if e.Paid(d) {
			out = append(out, d)
		}
	}
	return out
}

// ErrInvalidSession is returned for a malformed search session id.
var ErrInvalidSession = errors.New("invalid search session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// SessionKey identifies one metered search session of one user.
type SessionKey struct {
	UserID    uuid.UUID
	SessionID string
}

// NewSessionKey validates sessionID and binds it to userID.
func NewSessionKey(userID uuid.UUID, sessionID string) (SessionKey, error) {
	if userID == uuid.Nil || !sessionIDPattern.MatchString(sessionID) {
		return SessionKey{}, ErrInvalidSession
	}
	return SessionKey{UserID: userID, SessionID: sessionID}, nil
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%s", k.UserID, k.SessionID)
}

// SessionStore holds Entitlements per session. MarkPaid merges into the stored flags
// so concurrent submissions in one session never clear each other's entitlements.
type SessionStore interface {
	Load(ctx context.Context, key SessionKey) (Entitlements, error)
	MarkPaid(ctx context.Context, key SessionKey, ds ...Dimension) error
	Reset(ctx context.Context, key SessionKey) error
}

// Snapshot returns a copy of the flags.
func (e Entitlements) Snapshot() Entitlements {
	return e
}
