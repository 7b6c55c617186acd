// Package kame reads open receivables from the KAME ERP REST API.
package kame

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitroscience/vitro-bi/internal/receivables"
	"github.com/vitroscience/vitro-bi/pkg/config"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

const (
	receivablesPath = "/Contabilidad/getCuentaxCobrar"
	defaultPerPage  = 200
)

type tokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// Client lists open invoices. It implements receivables.Source.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	tokens        tokenProvider
	logg          *logger.Logger
	perPage       int
	rateLimitWait time.Duration
	pageDelay     time.Duration
	maxRetries    int
	sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func NewClient(cfg config.KameConfig, tokens tokenProvider, logg *logger.Logger, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	client := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		tokens:        tokens,
		logg:          logg,
		perPage:       perPage,
		rateLimitWait: cfg.RateLimitWait,
		pageDelay:     cfg.PageDelay,
		maxRetries:    cfg.MaxRetries,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.baseURL = strings.TrimRight(client.baseURL, "/")
	if client.baseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	return client, nil
}

// FetchOpenInvoices walks every month window between from and to. Any
// upstream failure aborts the whole fetch: a partial feed would make the
// missing invoices look paid.
func (c *Client) FetchOpenInvoices(ctx context.Context, from, to time.Time) ([]receivables.RawRecord, error) {
	snapshotDate := to.Format(time.DateOnly)
	seen := make(map[string]struct{})
	var out []receivables.RawRecord

	for _, window := range MonthWindows(from, to) {
		wctx := c.logg.WithFields(ctx, map[string]any{
			"window_start": window.Start.Format(time.DateOnly),
			"window_end":   window.End.Format(time.DateOnly),
		})
		added := 0
		for page := 1; ; page++ {
			items, err := c.fetchPage(wctx, window, page)
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				id := recordID(item)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				item["MonthFetched"] = window.Month()
				item["SnapshotDate"] = snapshotDate
				out = append(out, receivables.RawRecord(item))
				added++
			}
			if len(items) < c.perPage {
				break
			}
			if err := c.sleep(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}
		c.logg.Debug(c.logg.WithField(wctx, "records", added), "window fetched")
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, window Window, page int) ([]map[string]any, error) {
	refreshed := false
	retries := 0
	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(window, page), nil)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build receivables request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute receivables request")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			items, err := decodeItems(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode receivables page")
			}
			return items, nil
		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			drain(resp)
			refreshed = true
			c.tokens.Invalidate(ctx)
			c.logg.Warn(ctx, "kame token rejected; refreshing")
			continue
		case resp.StatusCode == http.StatusTooManyRequests && retries < c.maxRetries:
			drain(resp)
			retries++
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"page": page, "attempt": retries, "wait_ms": c.rateLimitWait.Milliseconds()}), "kame rate limit hit")
			if err := c.sleep(ctx, c.rateLimitWait); err != nil {
				return nil, err
			}
			continue
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, bodyReadLimit))
			_ = resp.Body.Close()
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
				fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
				fmt.Sprintf("receivables page %d of %s failed", page, window.Month()))
		}
	}
}

func (c *Client) pageURL(window Window, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("fechaVencimientoDesde", window.Start.Format(time.DateOnly))
	q.Set("fechaVencimientoHasta", window.End.Format(time.DateOnly))
	return c.baseURL + receivablesPath + "?" + q.Encode()
}

func decodeItems(body io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var payload struct {
		Items []map[string]any `json:"items"`
		Data  []map[string]any `json:"data"`
	}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Items) > 0 {
		return payload.Items, nil
	}
	return payload.Data, nil
}

// recordID prefers the upstream id. Without one, the document number is
// scoped by the debtor's RUT, since numbers repeat across debtors. A record
// with neither falls back to a digest of itself.
func recordID(item map[string]any) string {
	if id := fieldText(item, "Id"); id != "" {
		return "Id:" + id
	}
	for _, field := range []string{"NumeroDocumento", "FolioDocumento"} {
		if doc := fieldText(item, field); doc != "" {
			return field + ":" + fieldText(item, "Rut") + "/" + doc
		}
	}
	canonical, _ := json.Marshal(item)
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func fieldText(item map[string]any, field string) string {
	v, ok := item[field]
	if !ok || v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "0" {
		return ""
	}
	return s
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, bodyReadLimit))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
