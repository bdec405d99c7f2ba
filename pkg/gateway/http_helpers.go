package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/httputil"
)

type statusResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// writeFailure writes the uniform failure body.
func writeFailure(w http.ResponseWriter, code int, msg string) {
	httputil.WriteError(w, code, msg)
}

// writeErr maps err to its status and writes the failure body. Partial
// writes carry txSignature and partial:true.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteHTTPError(w, err, RequestID(r.Context()))
}

// writeErrWith writes the failure body for err with extra fields merged in,
// for reads that still have metadata to return.
func writeErrWith(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	he := errors.ToHTTPError(err, RequestID(r.Context()))
	body := map[string]any{
		"success": false,
		"error":   he.Error,
		"code":    he.Code,
	}
	if he.RequestID != "" {
		body["requestId"] = he.RequestID
	}
	for k, v := range extra {
		body[k] = v
	}
	httputil.WriteJSON(w, he.Status, body)
}

// decode reads the JSON request body into v, reporting malformed bodies as
// validation errors.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(w, r, v, g.cfg.MaxBodyBytes); err != nil {
		writeErr(w, r, errors.NewValidationError("body", err.Error(), nil))
		return false
	}
	return true
}

// sequenceParam parses the {sequence} path parameter.
func sequenceParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	seq, err := httputil.ParseSequence(chi.URLParam(r, "sequence"))
	if err != nil {
		writeErr(w, r, errors.NewValidationError("sequence", err.Error(), chi.URLParam(r, "sequence")))
		return 0, false
	}
	return seq, true
}
