// Package receivables serves the collections dashboard endpoints.
package receivables

import (
	"context"
	"net/http"

	"github.com/vitroscience/vitro-bi/api/responses"
	"github.com/vitroscience/vitro-bi/internal/analytics"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

// Service is the read side backing the dashboard.
type Service interface {
	List(ctx context.Context, f analytics.Filter) (*analytics.InvoiceList, error)
	Summary(ctx context.Context, f analytics.Filter) (*analytics.Summary, error)
	Aging(ctx context.Context, f analytics.Filter) (*analytics.Aging, error)
	Ranking(ctx context.Context) (*analytics.Ranking, error)
	ProcessBehavior(ctx context.Context) (*analytics.ProcessBehavior, error)
	Freshness(ctx context.Context) (*analytics.Freshness, error)
}

func List(service Service, logg *logger.Logger) http.HandlerFunc {
	return filtered(service.List, logg)
}

func Summary(service Service, logg *logger.Logger) http.HandlerFunc {
	return filtered(service.Summary, logg)
}

func Aging(service Service, logg *logger.Logger) http.HandlerFunc {
	return filtered(service.Aging, logg)
}

func Ranking(service Service, logg *logger.Logger) http.HandlerFunc {
	return unfiltered(service.Ranking, logg)
}

func ProcessBehavior(service Service, logg *logger.Logger) http.HandlerFunc {
	return unfiltered(service.ProcessBehavior, logg)
}

func Freshness(service Service, logg *logger.Logger) http.HandlerFunc {
	return unfiltered(service.Freshness, logg)
}

func filtered[T any](query func(context.Context, analytics.Filter) (*T, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		f, err := filterFromQuery(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := query(ctx, f)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func unfiltered[T any](query func(context.Context) (*T, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result, err := query(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
