package transporthttp

import (
	"net/http"
	"time"

	"example.com/labelengine/internal/status"
)

type statusEventReq struct {
	StatusCode  string         `json:"status_code"`
	StatusLabel string         `json:"status_label"`
	EventType   string         `json:"event_type"`
	EffectiveAt *time.Time     `json:"effective_at"`
	Notes       *string        `json:"notes"`
	ExternalID  *string        `json:"external_id"`
	Source      string         `json:"source"`
	Payload     map[string]any `json:"payload"`
}

func (d *ServerDeps) HandleListStatusEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	evs, err := d.Status.Events(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version_id": id, "events": evs})
}

func (d *ServerDeps) HandleCurrentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	cur, err := d.Status.Current(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version_id": id, "current": cur})
}

func (d *ServerDeps) HandleAppendStatusEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	var req statusEventReq
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := d.Status.Append(r.Context(), status.AppendInput{
		VersionID:   id,
		Code:        req.StatusCode,
		Label:       req.StatusLabel,
		EventType:   req.EventType,
		EffectiveAt: req.EffectiveAt,
		Notes:       req.Notes,
		ExternalID:  req.ExternalID,
		Source:      req.Source,
		Payload:     req.Payload,
	})
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (d *ServerDeps) HandleStatusSummary(w http.ResponseWriter, r *http.Request) {
	evs, err := d.Status.Summary(r.Context())
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"latest": evs})
}
