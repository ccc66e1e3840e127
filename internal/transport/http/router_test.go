package transporthttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/labelengine/internal/compliance"
	"example.com/labelengine/internal/config"
	"example.com/labelengine/internal/labels"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
	"example.com/labelengine/internal/status"
	"example.com/labelengine/internal/storage"
	"example.com/labelengine/internal/storage/memory"
)

const testWizardKey = "s3cret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.Nop()
	store := storage.Observe(memory.New(), log, m)

	eng := compliance.New(compliance.Deps{Store: store, Log: log, Metrics: m, Policy: compliance.AnyFinalized})
	d := &ServerDeps{
		Cfg:        config.Config{MaxBodyBytes: 1 << 13, WizardKey: testWizardKey},
		Store:      store,
		Labels:     labels.New(labels.Deps{Store: store, Log: log, Metrics: m}),
		Compliance: eng,
		Status:     status.New(status.Deps{Store: store, Gate: eng, Log: log, Metrics: m}),
		Log:        log,
		Metrics:    m,
		Gatherer:   reg,
	}
	srv := httptest.NewServer(d.Router())
	t.Cleanup(srv.Close)
	return srv
}

type call struct {
	method string
	path   string
	body   any
	wizard bool
	header map[string]string
}

func do(t *testing.T, srv *httptest.Server, c call) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(c.method, srv.URL+c.path, body)
	if err != nil {
		t.Fatal(err)
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.wizard {
		req.Header.Set(WizardKeyHeader, testWizardKey)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, out
}

func decodeInto(t *testing.T, raw []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func expectProblem(t *testing.T, resp *http.Response, raw []byte, status int, typ string) Problem {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, status, raw)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type = %q", ct)
	}
	var p Problem
	decodeInto(t, raw, &p)
	if p.Type != typ {
		t.Fatalf("problem type = %q, want %q", p.Type, typ)
	}
	return p
}

func bourbon() map[string]any {
	return map[string]any{
		"brand_name":   "Old Ridge",
		"product_name": "Small Batch",
		"category":     "Bourbon",
		"strength":     45.0,
		"volume_ml":    750,
	}
}

type writeResult struct {
	LabelID   int64  `json:"label_id"`
	VersionID int64  `json:"version_id"`
	Action    string `json:"action"`
}

func createLabel(t *testing.T, srv *httptest.Server) writeResult {
	t.Helper()
	resp, raw := do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels", body: map[string]any{"content": bourbon()}, wizard: true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, raw)
	}
	var res writeResult
	decodeInto(t, raw, &res)
	return res
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, raw := do(t, srv, call{method: http.MethodGet, path: path})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s = %d (%s)", path, resp.StatusCode, raw)
		}
	}
}

func TestAuthoringRequiresWizardKey(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels", body: map[string]any{"content": bourbon()}})
	expectProblem(t, resp, raw, http.StatusForbidden, TypeUnauthorized)

	resp, raw = do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels", body: map[string]any{"content": bourbon()},
		header: map[string]string{WizardKeyHeader: "wrong"}})
	expectProblem(t, resp, raw, http.StatusForbidden, TypeUnauthorized)

	res := createLabel(t, srv)
	if res.Action != "CREATE" || res.LabelID == 0 || res.VersionID == 0 {
		t.Fatalf("result = %+v", res)
	}

	// Reads stay open.
	resp, raw = do(t, srv, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/labels/%d", res.LabelID)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get label = %d (%s)", resp.StatusCode, raw)
	}
}

func TestUpdateReturnsOKAndHistoryGrows(t *testing.T) {
	srv := newTestServer(t)
	first := createLabel(t, srv)

	content := bourbon()
	content["narrative"] = "Aged six years in charred oak."
	resp, raw := do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels",
		body: map[string]any{"label_id": first.LabelID, "content": content}, wizard: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d (%s)", resp.StatusCode, raw)
	}
	var second writeResult
	decodeInto(t, raw, &second)
	if second.Action != "UPDATE" || second.LabelID != first.LabelID {
		t.Fatalf("second = %+v", second)
	}

	resp, raw = do(t, srv, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/labels/%d/versions", first.LabelID)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("versions = %d", resp.StatusCode)
	}
	var list struct {
		Versions []struct {
			ID     int64  `json:"id"`
			Action string `json:"action"`
		} `json:"versions"`
	}
	decodeInto(t, raw, &list)
	if len(list.Versions) != 2 || list.Versions[0].ID != second.VersionID {
		t.Fatalf("versions = %+v", list.Versions)
	}

	resp, raw = do(t, srv, call{method: http.MethodGet,
		path: fmt.Sprintf("/api/v1/versions/%d/diff?against=%d", second.VersionID, first.VersionID)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("diff = %d (%s)", resp.StatusCode, raw)
	}
	var diff struct {
		Fields []struct {
			Field   string `json:"field"`
			Changed bool   `json:"changed"`
		} `json:"fields"`
	}
	decodeInto(t, raw, &diff)
	for _, f := range diff.Fields {
		if f.Changed != (f.Field == "narrative") {
			t.Fatalf("field %s changed = %v", f.Field, f.Changed)
		}
	}
}

func TestDiffAcrossLabelsReportsAgainst(t *testing.T) {
	srv := newTestServer(t)
	a := createLabel(t, srv)
	b := createLabel(t, srv)

	resp, raw := do(t, srv, call{method: http.MethodGet,
		path: fmt.Sprintf("/api/v1/versions/%d/diff?against=%d", b.VersionID, a.VersionID)})
	p := expectProblem(t, resp, raw, http.StatusBadRequest, TypeValidation)
	if _, ok := p.Errors["against"]; !ok || len(p.Errors) != 1 {
		t.Fatalf("errors = %v", p.Errors)
	}
}

func TestHistoryLimitParsing(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		createLabel(t, srv)
	}
	cases := map[string]int{"": 3, "abc": 3, "0": 1, "-4": 1, "2": 2, "2.9": 2, "9999": 3}
	for q, want := range cases {
		resp, raw := do(t, srv, call{method: http.MethodGet, path: "/api/v1/labels/history?limit=" + q})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("limit=%q: status %d (%s)", q, resp.StatusCode, raw)
		}
		var out struct {
			Versions []json.RawMessage `json:"versions"`
		}
		decodeInto(t, raw, &out)
		if len(out.Versions) != want {
			t.Errorf("limit=%q: %d versions, want %d", q, len(out.Versions), want)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t)
	resp, raw := do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels",
		body: map[string]any{"content": map[string]any{"brand_name": "Only"}}, wizard: true})
	p := expectProblem(t, resp, raw, http.StatusBadRequest, TypeValidation)
	if _, ok := p.Errors["category"]; !ok {
		t.Fatalf("errors = %v", p.Errors)
	}

	resp, raw = do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels",
		body: map[string]any{"content": bourbon(), "surprise": true}, wizard: true})
	expectProblem(t, resp, raw, http.StatusBadRequest, TypeInvalidJSON)
}

func TestRequireJSONContentType(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/labels", strings.NewReader("brand=x"))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(WizardKeyHeader, testWizardKey)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	expectProblem(t, resp, raw, http.StatusUnsupportedMediaType, TypeUnsupportedMedia)
}

func TestPayloadTooLarge(t *testing.T) {
	srv := newTestServer(t)
	content := bourbon()
	content["narrative"] = strings.Repeat("x", 1<<14)
	resp, raw := do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels", body: map[string]any{"content": content}, wizard: true})
	expectProblem(t, resp, raw, http.StatusRequestEntityTooLarge, TypePayloadTooLarge)
}

func TestPatchLabelMetadataRejectsContent(t *testing.T) {
	srv := newTestServer(t)
	res := createLabel(t, srv)
	path := fmt.Sprintf("/api/v1/labels/%d", res.LabelID)

	resp, raw := do(t, srv, call{method: http.MethodPatch, path: path, body: map[string]any{"tags": []string{"q3"}, "brand_name": "Renamed"}})
	p := expectProblem(t, resp, raw, http.StatusForbidden, TypeContentVersioned)
	if p.Meta["field"] != "brand_name" {
		t.Fatalf("meta = %v", p.Meta)
	}

	resp, raw = do(t, srv, call{method: http.MethodPatch, path: path, body: map[string]any{"tags": []string{"q3"}, "internal_notes": "rush"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metadata patch = %d (%s)", resp.StatusCode, raw)
	}
	type metadataResult struct {
		Label struct {
			Metadata struct {
				Tags []string `json:"tags"`
			} `json:"metadata"`
			CurrentVersionID int64 `json:"current_version_id"`
		} `json:"label"`
		Updated bool   `json:"updated"`
		Reason  string `json:"reason"`
	}
	var out metadataResult
	decodeInto(t, raw, &out)
	l := out.Label
	if !out.Updated || len(l.Metadata.Tags) != 1 || l.Metadata.Tags[0] != "q3" || l.CurrentVersionID != res.VersionID {
		t.Fatalf("result = %+v", out)
	}

	resp, raw = do(t, srv, call{method: http.MethodPatch, path: path, body: map[string]any{}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty metadata patch = %d (%s)", resp.StatusCode, raw)
	}
	out = metadataResult{}
	decodeInto(t, raw, &out)
	if out.Updated || out.Reason == "" || len(out.Label.Metadata.Tags) != 1 {
		t.Fatalf("empty patch result = %+v", out)
	}

	resp, raw = do(t, srv, call{method: http.MethodPatch, path: "/api/v1/labels/9999", body: map[string]any{}})
	expectProblem(t, resp, raw, http.StatusNotFound, TypeNotFound)
}

func TestDraftPublishFlow(t *testing.T) {
	srv := newTestServer(t)
	res := createLabel(t, srv)
	base := fmt.Sprintf("/api/v1/labels/%d", res.LabelID)

	resp, raw := do(t, srv, call{method: http.MethodPut, path: base + "/draft", body: map[string]any{"tone": "modern"}, wizard: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put draft = %d (%s)", resp.StatusCode, raw)
	}
	resp, raw = do(t, srv, call{method: http.MethodPost, path: base + "/publish", wizard: true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish = %d (%s)", resp.StatusCode, raw)
	}
	var v struct {
		ID      int64  `json:"id"`
		Action  string `json:"action"`
		Status  string `json:"status"`
		Content struct {
			BrandName string `json:"brand_name"`
			Tone      string `json:"tone"`
		} `json:"content"`
	}
	decodeInto(t, raw, &v)
	if v.Action != "UPDATE" || v.Status != "PREPARING" || v.Content.Tone != "modern" || v.Content.BrandName != "Old Ridge" {
		t.Fatalf("published = %+v", v)
	}
}

func TestGenerateUsesFallbackWithoutProvider(t *testing.T) {
	srv := newTestServer(t)
	brief := map[string]any{
		"brand_name":   "Juniper & Co",
		"product_name": "London Dry",
		"category":     "Gin",
		"strength":     41.5,
		"volume_ml":    700,
	}
	resp, raw := do(t, srv, call{method: http.MethodPost, path: "/api/v1/labels/generate", body: brief, wizard: true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate = %d (%s)", resp.StatusCode, raw)
	}
	var out struct {
		Action    string `json:"action"`
		Persisted bool   `json:"persisted"`
		Source    string `json:"source"`
		Copy      struct {
			FrontCopy string `json:"front_copy"`
		} `json:"copy"`
	}
	decodeInto(t, raw, &out)
	if out.Action != "CREATE" || !out.Persisted || out.Source != "fallback" || !strings.Contains(out.Copy.FrontCopy, "Juniper & Co") {
		t.Fatalf("generate = %+v", out)
	}
}

func TestForwardStatusGateAndReview(t *testing.T) {
	srv := newTestServer(t)
	res := createLabel(t, srv)
	vpath := fmt.Sprintf("/api/v1/versions/%d", res.VersionID)

	resp, raw := do(t, srv, call{method: http.MethodPut, path: "/api/v1/compliance/rules", wizard: true, body: map[string]any{
		"category": "Bourbon", "rule_code": "ABV", "rule_version": "2024.1",
		"title": "Alcohol content", "guidance": "State alcohol by volume",
	}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put rule = %d (%s)", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, call{method: http.MethodPost, path: vpath + "/status-events", body: map[string]any{"status_code": "submitted"}})
	p := expectProblem(t, resp, raw, http.StatusConflict, TypeGateViolation)
	if p.Meta["status_code"] != "SUBMITTED" {
		t.Fatalf("meta = %v", p.Meta)
	}

	// Open statuses are never gated.
	resp, raw = do(t, srv, call{method: http.MethodPost, path: vpath + "/status-events", body: map[string]any{"status_code": "PREPARING"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("preparing = %d (%s)", resp.StatusCode, raw)
	}

	var started struct {
		Session struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"session"`
		Reused bool `json:"reused"`
	}
	resp, raw = do(t, srv, call{method: http.MethodPost, path: "/api/v1/compliance/sessions", body: map[string]any{"version_id": res.VersionID}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start = %d (%s)", resp.StatusCode, raw)
	}
	decodeInto(t, raw, &started)
	sessionID := started.Session.ID

	resp, raw = do(t, srv, call{method: http.MethodPost, path: "/api/v1/compliance/sessions", body: map[string]any{"version_id": res.VersionID, "category": "Bourbon"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reuse = %d (%s)", resp.StatusCode, raw)
	}
	decodeInto(t, raw, &started)
	if !started.Reused || started.Session.ID != sessionID {
		t.Fatalf("reuse = %+v", started)
	}

	spath := fmt.Sprintf("/api/v1/compliance/sessions/%d", sessionID)
	resp, raw = do(t, srv, call{method: http.MethodPost, path: spath + "/finalize"})
	p = expectProblem(t, resp, raw, http.StatusUnprocessableEntity, TypeIncompleteReview)
	if !strings.Contains(string(raw), `"ABV"`) {
		t.Fatalf("missing rules not reported: %s", raw)
	}

	resp, raw = do(t, srv, call{method: http.MethodPost, path: spath + "/events", body: map[string]any{
		"rule_code": "ABV", "rule_version": "2024.1", "decision": "MAYBE",
	}})
	expectProblem(t, resp, raw, http.StatusBadRequest, TypeValidation)

	resp, raw = do(t, srv, call{method: http.MethodPost, path: spath + "/events", body: map[string]any{
		"rule_code": "ABV", "rule_version": "2024.1", "decision": "PASS", "comment": "45% shown",
	}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("decision = %d (%s)", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, call{method: http.MethodPost, path: spath + "/finalize"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize = %d (%s)", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, call{method: http.MethodGet, path: vpath + "/review-status"})
	var rs struct {
		HasFinalized bool `json:"has_finalized_review"`
	}
	decodeInto(t, raw, &rs)
	if resp.StatusCode != http.StatusOK || !rs.HasFinalized {
		t.Fatalf("review status = %d %s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, call{method: http.MethodPost, path: vpath + "/status-events", body: map[string]any{
		"status_code": "SUBMITTED", "external_id": "COLA-123",
	}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submitted = %d (%s)", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/labels/%d", res.LabelID)})
	var snap struct {
		CurrentVersion struct {
			Status     string `json:"status"`
			ExternalID string `json:"external_application_id"`
		} `json:"current_version"`
	}
	decodeInto(t, raw, &snap)
	if resp.StatusCode != http.StatusOK || snap.CurrentVersion.Status != "SUBMITTED" || snap.CurrentVersion.ExternalID != "COLA-123" {
		t.Fatalf("snapshot = %s", raw)
	}

	// A submitted version can no longer be edited in place.
	resp, raw = do(t, srv, call{method: http.MethodPatch, path: vpath, body: map[string]any{"tone": "bold"}, wizard: true})
	expectProblem(t, resp, raw, http.StatusConflict, TypeConflict)

	resp, raw = do(t, srv, call{method: http.MethodGet, path: "/api/v1/status/summary"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "SUBMITTED") {
		t.Fatalf("summary = %d %s", resp.StatusCode, raw)
	}
}

func TestNotFoundAndBadIDs(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := do(t, srv, call{method: http.MethodGet, path: "/api/v1/labels/999"})
	expectProblem(t, resp, raw, http.StatusNotFound, TypeNotFound)

	resp, raw = do(t, srv, call{method: http.MethodGet, path: "/api/v1/labels/abc"})
	p := expectProblem(t, resp, raw, http.StatusBadRequest, TypeValidation)
	if _, ok := p.Errors["label_id"]; !ok {
		t.Fatalf("errors = %v", p.Errors)
	}

	resp, raw = do(t, srv, call{method: http.MethodGet, path: "/api/v1/compliance/rules"})
	expectProblem(t, resp, raw, http.StatusBadRequest, TypeValidation)
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := do(t, srv, call{method: http.MethodGet, path: "/api/v1/labels/42", header: map[string]string{RequestIDHeader: "trace-abc"}})
	if got := resp.Header.Get(RequestIDHeader); got != "trace-abc" {
		t.Fatalf("request id = %q", got)
	}
	p := expectProblem(t, resp, raw, http.StatusNotFound, TypeNotFound)
	if p.Instance != "trace-abc" {
		t.Fatalf("instance = %q", p.Instance)
	}

	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/healthz"})
	if got := resp.Header.Get(RequestIDHeader); !strings.HasPrefix(got, "req_") {
		t.Fatalf("generated request id = %q", got)
	}
}

func TestMetricsEndpointExposesRequests(t *testing.T) {
	srv := newTestServer(t)
	createLabel(t, srv)

	resp, raw := do(t, srv, call{method: http.MethodGet, path: "/metrics"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
	for _, want := range []string{
		"labelengine_http_requests_total",
		"labelengine_store_transactions_total",
		`labelengine_versions_appended_total{action="CREATE"} 1`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
