package receivables

import (
	"net/http"
	"strings"

	"github.com/vitroscience/vitro-bi/internal/analytics"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
)

const maxQueryValue = 200

// filterFromQuery reads the dashboard filters. Format checks on the dates
// are left to the analytics service validator.
func filterFromQuery(r *http.Request) (analytics.Filter, error) {
	query := r.URL.Query()
	f := analytics.Filter{
		Salesperson: strings.TrimSpace(query.Get("salesperson")),
		Query:       strings.TrimSpace(query.Get("q")),
		DueFrom:     strings.TrimSpace(query.Get("due_from")),
		DueTo:       strings.TrimSpace(query.Get("due_to")),
	}
	if len(f.Salesperson) > maxQueryValue || len(f.Query) > maxQueryValue {
		return analytics.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "filter value too long")
	}
	if f.DueFrom != "" && f.DueTo != "" && f.DueTo < f.DueFrom {
		return analytics.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "due_to must not be before due_from")
	}
	return f, nil
}
