package server

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/koustreak/vtapi/internal/errs"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail answers with the status matching the error kind. Server side
// failures are logged; client mistakes are not.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]any{"path": r.URL.Path})
	}
	kind := errs.KindOf(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind.String()})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput, errs.ErrKindQueryBuild, errs.ErrKindDecode:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindUnsupported:
		return http.StatusNotImplemented
	case errs.ErrKindConnectionFailed, errs.ErrKindUninitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
