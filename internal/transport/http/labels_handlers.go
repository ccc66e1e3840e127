package transporthttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"example.com/labelengine/internal/copygen"
	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/labels"
)

type writeVersionReq struct {
	LabelID *int64         `json:"label_id"`
	Content domain.Content `json:"content"`
}

type generateReq struct {
	LabelID *int64 `json:"label_id"`
	copygen.Brief
}

func resultStatus(a domain.Action) int {
	if a == domain.ActionCreate {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (d *ServerDeps) HandleHistoryFeed(w http.ResponseWriter, r *http.Request) {
	vs, err := d.Labels.HistoryFeed(r.Context(), limitParam(r))
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": vs})
}

func (d *ServerDeps) HandleCreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req writeVersionReq
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := d.Labels.CreateOrUpdate(r.Context(), req.LabelID, req.Content)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, resultStatus(res.Action), res)
}

func (d *ServerDeps) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req generateReq
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := d.Labels.Generate(r.Context(), labels.GenerateInput{LabelID: req.LabelID, Brief: req.Brief})
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, resultStatus(res.Action), res)
}

func (d *ServerDeps) HandleGetLabel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	snap, err := d.Labels.Snapshot(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandlePatchLabelMetadata accepts metadata fields only; any content field is
// rejected because content changes go through versions.
func (d *ServerDeps) HandlePatchLabelMetadata(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		writeProblem(w, Problem{Type: TypeInvalidJSON, Title: "invalid json", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}
	for _, k := range sortedKeys(keys) {
		if domain.IsContentField(k) {
			d.writeError(w, r, &domain.ContentVersionControlledError{Field: k})
			return
		}
	}

	var patch domain.MetadataPatch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeProblem(w, Problem{Type: TypeInvalidJSON, Title: "invalid json", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}
	res, err := d.Labels.UpdateMetadata(r.Context(), id, patch)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d *ServerDeps) HandleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	v, err := d.Labels.Delete(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (d *ServerDeps) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	vs, err := d.Labels.ListVersions(r.Context(), id, limitParam(r))
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"label_id": id, "versions": vs})
}

func (d *ServerDeps) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	draft, err := d.Labels.GetOrCreateDraft(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (d *ServerDeps) HandlePutDraft(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	var patch domain.Content
	if !decodeBody(w, r, &patch) {
		return
	}
	draft, err := d.Labels.UpsertDraft(r.Context(), id, patch)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (d *ServerDeps) HandlePublishDraft(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "labelID", "label_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	v, err := d.Labels.PublishDraft(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (d *ServerDeps) HandleEditVersion(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	var patch domain.Content
	if !decodeBody(w, r, &patch) {
		return
	}
	v, err := d.Labels.EditVersion(r.Context(), id, patch)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleVersionDiff compares ?against= (older) with the path version (newer).
func (d *ServerDeps) HandleVersionDiff(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	against, err := strconv.ParseInt(r.URL.Query().Get("against"), 10, 64)
	if err != nil || against <= 0 {
		d.writeError(w, r, domain.Invalid("against", "must be a positive integer"))
		return
	}
	diff, err := d.Labels.Diff(r.Context(), against, id)
	if err != nil {
		d.writeError(w, r, renameField(err, "from_version_id", "against"))
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// renameField reports a service field under the name the caller used for it.
func renameField(err error, from, to string) error {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	fields := make([]domain.FieldError, len(ve.Fields))
	for i, fe := range ve.Fields {
		if fe.Field == from {
			fe.Field = to
		}
		fields[i] = fe
	}
	return &domain.ValidationError{Fields: fields}
}
