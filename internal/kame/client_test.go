package kame

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitroscience/vitro-bi/pkg/config"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

type fakeERP struct {
	mu          sync.Mutex
	tokenCalls  int
	listCalls   int
	pages       map[string][][]map[string]any
	useDataKey  bool
	rateLimited int
	rejectFirst bool
	failStatus  int
	seenWindows []string
}

func (f *fakeERP) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		n := f.tokenCalls
		f.mu.Unlock()
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": fmt.Sprintf("tok-%d", n), "expires_in": 3600})
	})
	mux.HandleFunc("/api"+receivablesPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listCalls++
		if f.rejectFirst && r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.rateLimited > 0 {
			f.rateLimited--
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if f.failStatus != 0 {
			http.Error(w, "upstream exploded", f.failStatus)
			return
		}
		q := r.URL.Query()
		window := q.Get("fechaVencimientoDesde") + ".." + q.Get("fechaVencimientoHasta")
		page, _ := strconv.Atoi(q.Get("page"))
		if page == 1 {
			f.seenWindows = append(f.seenWindows, window)
		}
		var items []map[string]any
		if pages := f.pages[window]; page-1 < len(pages) {
			items = pages[page-1]
		}
		key := "items"
		if f.useDataKey {
			key = "data"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{key: items})
	})
	return mux
}

func newTestClient(t *testing.T, erp *fakeERP, perPage int) *Client {
	t.Helper()
	srv := httptest.NewServer(erp.handler(t))
	t.Cleanup(srv.Close)

	tokens, err := NewTokenSource(TokenSourceParams{
		HTTPClient:   srv.Client(),
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "id",
		ClientSecret: "secret",
		Audience:     "https://api.kameone.cl/api",
	})
	require.NoError(t, err)

	client, err := NewClient(config.KameConfig{
		BaseURL:       srv.URL + "/api",
		PerPage:       perPage,
		RateLimitWait: time.Millisecond,
		MaxRetries:    2,
	}, tokens, logger.New(logger.Options{ServiceName: "kame-test", Output: io.Discard}), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	client.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return client
}

func invoice(id int, folio string) map[string]any {
	return map[string]any{"Id": id, "Rut": "76.123.456-7", "FolioDocumento": folio, "Saldo": 1000}
}

func TestFetchOpenInvoicesPaginatesAndDedupes(t *testing.T) {
	erp := &fakeERP{pages: map[string][][]map[string]any{
		"2025-01-15..2025-01-31": {
			{invoice(1, "F1"), invoice(2, "F2")},
			{invoice(3, "F3")},
		},
		"2025-02-01..2025-02-10": {
			{invoice(3, "F3"), invoice(4, "F4")},
			{},
		},
	}}
	client := newTestClient(t, erp, 2)

	from := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	records, err := client.FetchOpenInvoices(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, []string{"2025-01-15..2025-01-31", "2025-02-01..2025-02-10"}, erp.seenWindows)
	assert.Equal(t, "2025-01", records[0]["MonthFetched"])
	assert.Equal(t, "2025-02", records[3]["MonthFetched"])
	assert.Equal(t, "2025-02-10", records[3]["SnapshotDate"])
	assert.Equal(t, 4, erp.listCalls, "short first page of January stops after page 2; February stops on the empty page")
	assert.Equal(t, 1, erp.tokenCalls)
}

func TestFetchOpenInvoicesReadsDataKey(t *testing.T) {
	erp := &fakeERP{useDataKey: true, pages: map[string][][]map[string]any{
		"2025-03-01..2025-03-05": {{invoice(9, "F9")}},
	}}
	client := newTestClient(t, erp, 200)

	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchOpenInvoices(context.Background(), day.AddDate(0, 0, -4), day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "F9", records[0]["FolioDocumento"])
}

func TestFetchOpenInvoicesRetriesRateLimit(t *testing.T) {
	erp := &fakeERP{rateLimited: 2, pages: map[string][][]map[string]any{
		"2025-03-01..2025-03-01": {{invoice(1, "F1")}},
	}}
	client := newTestClient(t, erp, 200)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchOpenInvoices(context.Background(), day, day)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, erp.listCalls)
}

func TestFetchOpenInvoicesGivesUpAfterMaxRetries(t *testing.T) {
	erp := &fakeERP{rateLimited: 10}
	client := newTestClient(t, erp, 200)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchOpenInvoices(context.Background(), day, day)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.Equal(t, 3, erp.listCalls)
}

func TestFetchOpenInvoicesRefreshesRejectedToken(t *testing.T) {
	erp := &fakeERP{rejectFirst: true, pages: map[string][][]map[string]any{
		"2025-03-01..2025-03-01": {{invoice(1, "F1")}},
	}}
	client := newTestClient(t, erp, 200)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchOpenInvoices(context.Background(), day, day)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, erp.tokenCalls)
}

func TestFetchOpenInvoicesAbortsOnUpstreamError(t *testing.T) {
	erp := &fakeERP{failStatus: http.StatusBadGateway}
	client := newTestClient(t, erp, 200)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchOpenInvoices(context.Background(), from, from.AddDate(0, 2, 0))
	require.Error(t, err)
	assert.Nil(t, records, "partial feeds must never be returned")
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "DEPENDENCY")
	assert.Equal(t, 1, erp.listCalls)
}

func TestFetchOpenInvoicesHonorsCancellation(t *testing.T) {
	erp := &fakeERP{rateLimited: 1}
	client := newTestClient(t, erp, 200)
	client.sleep = sleepContext
	client.rateLimitWait = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchOpenInvoices(ctx, day, day)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecordIDFallbacks(t *testing.T) {
	assert.Equal(t, "Id:42", recordID(map[string]any{"Id": 42, "NumeroDocumento": "7"}))
	assert.Equal(t, "NumeroDocumento:R1/7", recordID(map[string]any{"Id": nil, "Rut": "R1", "NumeroDocumento": "7"}))
	assert.Equal(t, "FolioDocumento:R1/F7", recordID(map[string]any{"Id": 0, "Rut": "R1", "FolioDocumento": "F7"}))
	assert.NotEqual(t,
		recordID(map[string]any{"Rut": "R1", "NumeroDocumento": 100}),
		recordID(map[string]any{"Rut": "R2", "NumeroDocumento": 100}))

	a := recordID(map[string]any{"Rut": "1", "Saldo": 10})
	b := recordID(map[string]any{"Saldo": 10, "Rut": "1"})
	assert.Equal(t, a, b, "digest must not depend on key order")
	assert.NotEqual(t, a, recordID(map[string]any{"Rut": "1", "Saldo": 11}))
}

func TestFetchOpenInvoicesKeepsSharedDocumentNumbersAcrossDebtors(t *testing.T) {
	erp := &fakeERP{pages: map[string][][]map[string]any{
		"2025-03-01..2025-03-01": {{
			{"NumeroDocumento": 100, "Rut": "R1", "FolioDocumento": "100", "Saldo": 1000},
			{"NumeroDocumento": 100, "Rut": "R2", "FolioDocumento": "100", "Saldo": 2000},
			{"NumeroDocumento": 100, "Rut": "R1", "FolioDocumento": "100", "Saldo": 1000},
		}},
	}}
	client := newTestClient(t, erp, 200)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchOpenInvoices(context.Background(), day, day)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "R1", records[0]["Rut"])
	assert.Equal(t, "R2", records[1]["Rut"])
}
