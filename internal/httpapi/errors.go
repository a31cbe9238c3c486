package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haasonsaas/nexus/internal/engerrors"
)

// errorBody is the JSON shape of every error response: {"error": "...",
// "code": "..."}.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError classifies err via engerrors and writes the matching HTTP
// status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	kind := engerrors.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), errorBody{Error: err.Error(), Code: kind.Code()})
}

// writeKindError writes a classified error without needing an
// *engerrors.EngineError, useful for handler-local validation failures.
func writeKindError(w http.ResponseWriter, kind engerrors.Kind, message string) {
	writeJSON(w, kind.HTTPStatus(), errorBody{Error: message, Code: kind.Code()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// maxRequestBodyBytes bounds decoded request bodies.
const maxRequestBodyBytes = 1 << 20 // 1MiB

// decodeJSON reads and strictly decodes a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return engerrors.New(engerrors.Validation, "request body too large")
		}
		return engerrors.Wrap(engerrors.Validation, "invalid request body", err)
	}
	return nil
}
