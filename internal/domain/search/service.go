package search

import (
	"context"
	"fmt"

	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
)

const defaultPageSize = 20

// Result is one metered field rep search.
type Result struct {
	Reps    []*FieldRep
	Total   int
	Page    Page
	Outcome *searchcredit.Outcome
}

// Service meters premium filters and runs the field rep search once metering allows it.
type Service struct {
	meter       *searchcredit.Meter
	repo        Repository
	maxPageSize int
}

func NewService(meter *searchcredit.Meter, repo Repository, maxPageSize int) *Service {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Service{meter: meter, repo: repo, maxPageSize: maxPageSize}
}

// Search returns a metering error (searchcredit.Err*) without searching, or a Result.
// When metering succeeded but the search itself failed, the Result is still returned
// together with an error wrapping ErrSearchFailed, so callers can report what was charged.
func (s *Service) Search(ctx context.Context, key searchcredit.SessionKey, f searchcredit.Filters, page Page) (*Result, error) {
	if page.Page > MaxPage {
		return nil, ErrPageOutOfRange
	}
	page = s.normalize(page)
	res := &Result{Page: page}

	outcome, err := s.meter.Submit(ctx, searchcredit.Submission{Key: key, Filters: f},
		func(ctx context.Context, f searchcredit.Filters) error {
			reps, total, err := s.repo.SearchFieldReps(ctx, f, page)
			if err != nil {
				return err
			}
			res.Reps, res.Total = reps, total
			return nil
		})
	res.Outcome = outcome
	if err != nil {
		return res, err
	}
	if outcome.SearchErr != nil {
		return res, fmt.Errorf("%w: %v", ErrSearchFailed, outcome.SearchErr)
	}
	return res, nil
}

func (s *Service) Quote(ctx context.Context, key searchcredit.SessionKey, f searchcredit.Filters) (searchcredit.Quote, searchcredit.Entitlements, error) {
	return s.meter.Preview(ctx, key, f)
}

func (s *Service) Session(ctx context.Context, key searchcredit.SessionKey) (searchcredit.Entitlements, error) {
	return s.meter.Session(ctx, key)
}

func (s *Service) ResetSession(ctx context.Context, key searchcredit.SessionKey) error {
	return s.meter.Reset(ctx, key)
}

func (s *Service) normalize(p Page) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > s.maxPageSize {
		p.Limit = s.maxPageSize
	}
	return p
}
