package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

// WriteSuccess writes data inside the success envelope with a 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Success{Data: data})
}

// WriteError maps err onto its code's status and public message. Untyped
// errors are reported as internal. Client errors log at warn, server errors
// at error with the driver fields of any store failure underneath.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	status, problem := problemFor(typed)

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(typed).Fields())
		ctx = logg.WithField(ctx, "status", status)
		if status >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "request.rejected")
		}
	}
	writeJSON(w, status, Failure{Error: problem})
}

// problemFor keeps internal messages private: only caller-fixable codes
// echo their own message, everything else uses the code's public text.
func problemFor(e *pkgerrors.Error) (int, Problem) {
	meta := pkgerrors.MetadataFor(e.Code())
	problem := Problem{Code: string(e.Code()), Message: meta.PublicMessage}
	switch e.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		if m := e.Message(); m != "" {
			problem.Message = m
		}
	}
	if meta.DetailsAllowed {
		problem.Details = e.Details()
	}
	return meta.HTTPStatus, problem
}

// writeJSON marshals before touching the header so an unencodable payload
// still yields a well formed 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"` + string(pkgerrors.CodeInternal) + `","message":"response could not be encoded"}}`)
	}
	body = append(body, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
