// Package memstore is an in-memory receivables.Store with the same
// all-or-nothing commit semantics as the SQL repository.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vitroscience/vitro-bi/internal/receivables"
	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
)

type state struct {
	live      map[receivables.Key]models.ReceivableInvoice
	history   []models.ReceivableHistory
	anomalies []models.ReceivableAnomaly
	runs      []models.ReconciliationRun
	nextID    uint64
}

func (s *state) clone() *state {
	live := make(map[receivables.Key]models.ReceivableInvoice, len(s.live))
	for k, v := range s.live {
		live[k] = v
	}
	return &state{
		live:      live,
		history:   append([]models.ReceivableHistory(nil), s.history...),
		anomalies: append([]models.ReceivableAnomaly(nil), s.anomalies...),
		runs:      append([]models.ReconciliationRun(nil), s.runs...),
		nextID:    s.nextID,
	}
}

// Store keeps snapshot, ledger, anomalies and runs in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	// FailWrite, when set, is returned by the named Writer step
	// ("replace_live", "append_history", "append_anomalies", "record_run").
	FailWrite map[string]error
}

func New() *Store {
	return &Store{state: &state{live: map[receivables.Key]models.ReceivableInvoice{}}}
}

// Seed installs rows into the live snapshot directly.
func (s *Store) Seed(rows ...models.ReceivableInvoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.state.live[receivables.KeyOf(row)] = row
	}
}

// SeedHistory appends ledger rows directly.
func (s *Store) SeedHistory(rows ...models.ReceivableHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.state.nextID++
		row.ID = s.state.nextID
		s.state.history = append(s.state.history, row)
	}
}

func (s *Store) ReadLive(ctx context.Context) (map[receivables.Key]models.ReceivableInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[receivables.Key]models.ReceivableInvoice, len(s.state.live))
	for k, v := range s.state.live {
		out[k] = v
	}
	return out, nil
}

func (s *Store) FindPaid(ctx context.Context, keys []receivables.Key) (map[receivables.Key]models.ReceivableHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[receivables.Key]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	out := make(map[receivables.Key]models.ReceivableHistory)
	for _, row := range s.state.history {
		k := receivables.Key{DebtorID: row.DebtorID, DocumentFolio: row.DocumentFolio}
		if _, ok := wanted[k]; ok && row.Status == enums.InvoiceStatusPaid {
			out[k] = row
		}
	}
	return out, nil
}

func (s *Store) RecordRun(ctx context.Context, run *models.ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&writer{store: s, st: s.state}).RecordRun(ctx, run)
}

// WithinTx stages every write on a copy and swaps it in only when fn
// returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(w receivables.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.state.clone()
	if err := fn(&writer{store: s, st: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// Live returns the live snapshot sorted by key.
func (s *Store) Live() []models.ReceivableInvoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReceivableInvoice, 0, len(s.state.live))
	for _, row := range s.state.live {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return receivables.KeyOf(out[i]).String() < receivables.KeyOf(out[j]).String()
	})
	return out
}

func (s *Store) History() []models.ReceivableHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReceivableHistory(nil), s.state.history...)
}

func (s *Store) Anomalies() []models.ReceivableAnomaly {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReceivableAnomaly(nil), s.state.anomalies...)
}

func (s *Store) Runs() []models.ReconciliationRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReconciliationRun(nil), s.state.runs...)
}

type writer struct {
	store *Store
	st    *state
}

func (w *writer) fail(step string) error {
	if err, ok := w.store.FailWrite[step]; ok && err != nil {
		return err
	}
	return nil
}

func (w *writer) RecordRun(ctx context.Context, run *models.ReconciliationRun) error {
	if err := w.fail("record_run"); err != nil {
		return err
	}
	for _, existing := range w.st.runs {
		if existing.ID == run.ID {
			return fmt.Errorf("run %s already recorded", run.ID)
		}
	}
	w.st.runs = append(w.st.runs, *run)
	return nil
}

func (w *writer) ReplaceLive(ctx context.Context, rows []models.ReceivableInvoice) error {
	if err := w.fail("replace_live"); err != nil {
		return err
	}
	live := make(map[receivables.Key]models.ReceivableInvoice, len(rows))
	for _, row := range rows {
		k := receivables.KeyOf(row)
		if _, dup := live[k]; dup {
			return fmt.Errorf("duplicate primary key %s", k)
		}
		live[k] = row
	}
	w.st.live = live
	return nil
}

func (w *writer) AppendHistory(ctx context.Context, rows []models.ReceivableHistory) error {
	if err := w.fail("append_history"); err != nil {
		return err
	}
	for _, row := range rows {
		w.st.nextID++
		row.ID = w.st.nextID
		w.st.history = append(w.st.history, row)
	}
	return nil
}

func (w *writer) AppendAnomalies(ctx context.Context, rows []models.ReceivableAnomaly) error {
	if err := w.fail("append_anomalies"); err != nil {
		return err
	}
	w.st.anomalies = append(w.st.anomalies, rows...)
	return nil
}
