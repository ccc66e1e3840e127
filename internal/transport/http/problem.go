package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"example.com/labelengine/internal/domain"
)

type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Meta     map[string]any      `json:"meta,omitempty"`
}

// Problem type codes.
const (
	TypeInvalidJSON        = "invalid_json"
	TypeValidation         = "validation_failed"
	TypeNotFound           = "not_found"
	TypeConflict           = "conflict"
	TypeUnprocessable      = "unprocessable"
	TypeIncompleteReview   = "incomplete_review"
	TypeGateViolation      = "compliance_not_finalized"
	TypeContentVersioned   = "content_version_controlled"
	TypeUnauthorized       = "wizard_only"
	TypeUnsupportedMedia   = "unsupported_media_type"
	TypePayloadTooLarge    = "payload_too_large"
	TypeStorage            = "storage_error"
	TypeInternal           = "internal_error"
	TypeServiceUnavailable = "not_ready"
)

func writeProblem(w http.ResponseWriter, p Problem) {
	if p.Instance == "" {
		p.Instance = w.Header().Get(RequestIDHeader)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func fieldErrors(fields []domain.FieldError) map[string][]string {
	out := map[string][]string{}
	for _, fe := range fields {
		out[fe.Field] = append(out[fe.Field], fe.Msg)
	}
	return out
}

// problemFor maps a service error to its problem document.
func problemFor(err error) Problem {
	var (
		ve  *domain.ValidationError
		nf  *domain.NotFoundError
		ce  *domain.ConflictError
		ue  *domain.UnprocessableError
		ie  *domain.IncompleteStateError
		ge  *domain.GateViolationError
		cv  *domain.ContentVersionControlledError
		se  *domain.StorageError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		return Problem{Type: TypeValidation, Title: "validation failed", Status: http.StatusBadRequest,
			Detail: "one or more fields are invalid", Errors: fieldErrors(ve.Fields)}
	case errors.As(err, &nf):
		return Problem{Type: TypeNotFound, Title: "not found", Status: http.StatusNotFound, Detail: nf.Error()}
	case errors.As(err, &ce):
		return Problem{Type: TypeConflict, Title: "conflict", Status: http.StatusConflict, Detail: ce.Reason, Meta: ce.Meta}
	case errors.As(err, &ie):
		missing := make([]domain.RuleRef, len(ie.Missing))
		copy(missing, ie.Missing)
		return Problem{Type: TypeIncompleteReview, Title: "review incomplete", Status: http.StatusUnprocessableEntity,
			Detail: "cannot finalize: missing decisions for required rules",
			Meta:   map[string]any{"session_id": ie.SessionID, "missing": missing}}
	case errors.As(err, &ue):
		return Problem{Type: TypeUnprocessable, Title: "unprocessable", Status: http.StatusUnprocessableEntity, Detail: ue.Reason}
	case errors.As(err, &ge):
		return Problem{Type: TypeGateViolation, Title: "compliance review not finalized", Status: http.StatusConflict,
			Detail: ge.Error(),
			Meta:   map[string]any{"version_id": ge.VersionID, "status_code": ge.Status}}
	case errors.As(err, &cv):
		return Problem{Type: TypeContentVersioned, Title: "content is version-controlled", Status: http.StatusForbidden,
			Detail: cv.Error(), Meta: map[string]any{"field": cv.Field}}
	case errors.As(err, &mbe):
		return Problem{Type: TypePayloadTooLarge, Title: "payload too large", Status: http.StatusRequestEntityTooLarge, Detail: err.Error()}
	case errors.As(err, &se):
		return Problem{Type: TypeStorage, Title: "storage error", Status: http.StatusInternalServerError, Detail: "the operation was rolled back"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Problem{Type: TypeServiceUnavailable, Title: "request cancelled", Status: http.StatusServiceUnavailable, Detail: err.Error()}
	default:
		return Problem{Type: TypeInternal, Title: "internal error", Status: http.StatusInternalServerError}
	}
}

// writeError renders err and logs server-side failures.
func (d *ServerDeps) writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	if p.Status >= 500 {
		d.Log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", w.Header().Get(RequestIDHeader)).Msg("request failed")
	}
	writeProblem(w, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
