package receivables

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vitroscience/vitro-bi/api/responses"
	"github.com/vitroscience/vitro-bi/internal/export"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

// Export streams the filtered dashboard as an XLSX attachment named after
// the business date.
func Export(service Service, today func() time.Time, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		f, err := filterFromQuery(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		book, err := export.Build(ctx, service, f)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer func() { _ = book.Close() }()

		buf, err := book.WriteToBuffer()
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render workbook"))
			return
		}

		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cxc-%s.xlsx"`, today().Format(time.DateOnly)))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil && logg != nil {
			logg.Error(ctx, "export.write_failed", err)
		}
	}
}
