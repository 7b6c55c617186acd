package receivables

import (
	"context"
	"sync"

	"github.com/vitroscience/vitro-bi/internal/analytics"
)

type testService struct {
	mu    sync.Mutex
	calls int
	last  analytics.Filter
	err   error

	list    *analytics.InvoiceList
	summary *analytics.Summary
}

func (s *testService) record(f analytics.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = f
	return s.err
}

func (s *testService) called() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls > 0
}

func (s *testService) List(_ context.Context, f analytics.Filter) (*analytics.InvoiceList, error) {
	if err := s.record(f); err != nil {
		return nil, err
	}
	if s.list != nil {
		return s.list, nil
	}
	return &analytics.InvoiceList{Available: true}, nil
}

func (s *testService) Summary(_ context.Context, f analytics.Filter) (*analytics.Summary, error) {
	if err := s.record(f); err != nil {
		return nil, err
	}
	if s.summary != nil {
		return s.summary, nil
	}
	return &analytics.Summary{Available: true}, nil
}

func (s *testService) Aging(_ context.Context, f analytics.Filter) (*analytics.Aging, error) {
	if err := s.record(f); err != nil {
		return nil, err
	}
	buckets := make([]analytics.AgingBucket, 0, len(analytics.AgingLabels))
	for _, label := range analytics.AgingLabels {
		buckets = append(buckets, analytics.AgingBucket{Label: label})
	}
	return &analytics.Aging{Available: true, Buckets: buckets}, nil
}

func (s *testService) Ranking(context.Context) (*analytics.Ranking, error) {
	if err := s.record(analytics.Filter{}); err != nil {
		return nil, err
	}
	return &analytics.Ranking{Available: true}, nil
}

func (s *testService) ProcessBehavior(context.Context) (*analytics.ProcessBehavior, error) {
	if err := s.record(analytics.Filter{}); err != nil {
		return nil, err
	}
	return &analytics.ProcessBehavior{}, nil
}

func (s *testService) Freshness(context.Context) (*analytics.Freshness, error) {
	if err := s.record(analytics.Filter{}); err != nil {
		return nil, err
	}
	return &analytics.Freshness{Available: true, SnapshotDate: "2025-03-10", Today: "2025-03-10"}, nil
}
