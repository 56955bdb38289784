package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
)

const queryTimeout = 5 * time.Second

// Repository executes field rep searches.
type Repository interface {
	SearchFieldReps(ctx context.Context, f searchcredit.Filters, page Page) ([]*FieldRep, int, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

const fieldRepColumns = `
	id, user_id, display_name, state, counties, platforms, inspection_types,
	has_abc, has_hud_key, trust_score, updated_at`

func (r *repository) SearchFieldReps(ctx context.Context, f searchcredit.Filters, page Page) ([]*FieldRep, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conditions := []string{"is_searchable = true"}
	args := []interface{}{}
	argIndex := 1

	if f.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argIndex))
		args = append(args, f.State)
		argIndex++
	}

	if len(f.Counties) > 0 {
		conditions = append(conditions, fmt.Sprintf("counties && $%d", argIndex))
		args = append(args, pq.Array(f.Counties))
		argIndex++
	}

	if f.Keyword != "" {
		conditions = append(conditions, fmt.Sprintf(`display_name ILIKE $%d ESCAPE '\'`, argIndex))
		args = append(args, "%"+escapeLike(f.Keyword)+"%")
		argIndex++
	}

	if len(f.Platforms) > 0 {
		conditions = append(conditions, fmt.Sprintf("platforms && $%d", argIndex))
		args = append(args, pq.Array(f.Platforms))
		argIndex++
	}

	if f.ABCRequired != nil && *f.ABCRequired {
		conditions = append(conditions, "has_abc = true")
	}

	if f.HUDKeyRequired != nil && *f.HUDKeyRequired {
		conditions = append(conditions, "has_hud_key = true")
	}

	if len(f.InspectionTypes) > 0 {
		conditions = append(conditions, fmt.Sprintf("inspection_types && $%d", argIndex))
		args = append(args, pq.Array(f.InspectionTypes))
		argIndex++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM field_rep_profiles "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: count: %v", ErrSearchFailed, err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM field_rep_profiles
		%s
		ORDER BY trust_score DESC, display_name ASC
		LIMIT $%d OFFSET $%d
	`, fieldRepColumns, where, argIndex, argIndex+1)
	offset := page.offset()
	if offset < 0 {
		offset = 0
	}
	args = append(args, page.Limit, offset)

	reps := make([]*FieldRep, 0)
	if err := r.db.SelectContext(ctx, &reps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: select: %v", ErrSearchFailed, err)
	}

	return reps, total, nil
}
