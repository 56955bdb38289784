package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
)

// MemoryRepository searches an in-process profile list with the same filter semantics
// as the postgres repository.
type MemoryRepository struct {
	mu   sync.RWMutex
	reps []*FieldRep
}

func NewMemoryRepository(reps ...*FieldRep) *MemoryRepository {
	r := &MemoryRepository{}
	r.Add(reps...)
	return r
}

func (r *MemoryRepository) Add(reps ...*FieldRep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reps = append(r.reps, reps...)
}

func (r *MemoryRepository) SearchFieldReps(ctx context.Context, f searchcredit.Filters, page Page) ([]*FieldRep, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	matched := make([]*FieldRep, 0)
	for _, rep := range r.reps {
		if matchesFilters(rep, f) {
			matched = append(matched, rep)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].TrustScore != matched[j].TrustScore {
			return matched[i].TrustScore > matched[j].TrustScore
		}
		return matched[i].DisplayName < matched[j].DisplayName
	})

	total := len(matched)
	start := page.offset()
	if start < 0 || start >= total {
		return []*FieldRep{}, total, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchesFilters(rep *FieldRep, f searchcredit.Filters) bool {
	if f.State != "" && rep.State != f.State {
		return false
	}
	if len(f.Counties) > 0 && !overlaps(rep.Counties, f.Counties) {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(rep.DisplayName), strings.ToLower(f.Keyword)) {
		return false
	}
	if len(f.Platforms) > 0 && !overlaps(rep.Platforms, f.Platforms) {
		return false
	}
	if f.ABCRequired != nil && *f.ABCRequired && !rep.HasABC {
		return false
	}
	if f.HUDKeyRequired != nil && *f.HUDKeyRequired && !rep.HasHUDKey {
		return false
	}
	if len(f.InspectionTypes) > 0 && !overlaps(rep.InspectionTypes, f.InspectionTypes) {
		return false
	}
	return true
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// DevFieldReps is the profile set served in STORE=memory mode.
func DevFieldReps() []*FieldRep {
	now := time.Now().UTC()
	rep := func(name, state string, counties, platforms, types []string, abc, hud bool, trust int) *FieldRep {
		return &FieldRep{
			ID:              uuid.New(),
			UserID:          uuid.New(),
			DisplayName:     name,
			State:           state,
			Counties:        counties,
			Platforms:       platforms,
			InspectionTypes: types,
			HasABC:          abc,
			HasHUDKey:       hud,
			TrustScore:      trust,
			UpdatedAt:       now,
		}
	}
	return []*FieldRep{
		rep("Lone Star Inspections", "TX", []string{"Travis", "Williamson"}, []string{"EZ", "IA"}, []string{"interior", "exterior"}, true, false, 92),
		rep("Hill Country Field Services", "TX", []string{"Hays"}, []string{"IA"}, []string{"exterior"}, false, true, 81),
		rep("Gulf Coast Property Checks", "TX", []string{"Harris"}, []string{"EZ"}, []string{"occupancy"}, true, true, 77),
		rep("Peach State Reps", "GA", []string{"Fulton", "DeKalb"}, []string{"SG"}, []string{"interior"}, false, false, 88),
		rep("Sunshine Inspections", "FL", []string{"Orange"}, []string{"EZ", "SG"}, []string{"exterior", "occupancy"}, true, false, 70),
	}
}
