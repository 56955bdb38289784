package search

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FieldRep is a searchable field representative profile.
type FieldRep struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	UserID          uuid.UUID      `db:"user_id" json:"user_id"`
	DisplayName     string         `db:"display_name" json:"display_name"`
	State           string         `db:"state" json:"state"`
	Counties        pq.StringArray `db:"counties" json:"counties"`
	Platforms       pq.StringArray `db:"platforms" json:"platforms"`
	InspectionTypes pq.StringArray `db:"inspection_types" json:"inspection_types"`
	HasABC          bool           `db:"has_abc" json:"has_abc"`
	HasHUDKey       bool           `db:"has_hud_key" json:"has_hud_key"`
	TrustScore      int            `db:"trust_score" json:"trust_score"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// MaxPage bounds how deep a search can page.
const MaxPage = 10000

// Page is 1-based pagination.
type Page struct {
	Page  int
	Limit int
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Limit
}
