package transporthttp

import (
	"net/http"
	"strings"

	"example.com/labelengine/internal/compliance"
	"example.com/labelengine/internal/domain"
)

type ruleReq struct {
	Category string  `json:"category"`
	Code     string  `json:"rule_code"`
	Version  string  `json:"rule_version"`
	Title    string  `json:"title"`
	Guidance string  `json:"guidance"`
	Example  *string `json:"example"`
	Section  *string `json:"section"`
	Active   *bool   `json:"active"`
}

type ruleActiveReq struct {
	Category string `json:"category"`
	Code     string `json:"rule_code"`
	Version  string `json:"rule_version"`
	Active   *bool  `json:"active"`
}

type startSessionReq struct {
	VersionID    int64   `json:"version_id"`
	Category     string  `json:"category"`
	ReviewerID   *string `json:"reviewer_id"`
	ReviewerRole *string `json:"reviewer_role"`
}

type startSessionResp struct {
	Session domain.Session `json:"session"`
	Reused  bool           `json:"reused"`
}

type decisionReq struct {
	RuleCode    string  `json:"rule_code"`
	RuleVersion string  `json:"rule_version"`
	Decision    string  `json:"decision"`
	Comment     *string `json:"comment"`
}

func (d *ServerDeps) HandleListRules(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	rules, err := d.Compliance.ActiveRules(r.Context(), category)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": strings.TrimSpace(category), "rules": rules})
}

func (d *ServerDeps) HandlePutRule(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req ruleReq
	if !decodeBody(w, r, &req) {
		return
	}
	active := req.Active == nil || *req.Active
	rule, err := d.Compliance.UpsertRule(r.Context(), domain.Rule{
		Category: req.Category, Code: req.Code, Version: req.Version,
		Title: req.Title, Guidance: req.Guidance, Example: req.Example, Section: req.Section,
		Active: active,
	})
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (d *ServerDeps) HandlePatchRule(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req ruleActiveReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		d.writeError(w, r, domain.Invalid("active", "required"))
		return
	}
	rule, err := d.Compliance.SetRuleActive(r.Context(), req.Category, domain.RuleRef{Code: req.Code, Version: req.Version}, *req.Active)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (d *ServerDeps) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req startSessionReq
	if !decodeBody(w, r, &req) {
		return
	}
	s, reused, err := d.Compliance.StartOrReuse(r.Context(), req.VersionID, req.Category,
		domain.Reviewer{ID: req.ReviewerID, Role: req.ReviewerRole})
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if reused {
		code = http.StatusOK
	}
	writeJSON(w, code, startSessionResp{Session: s, Reused: reused})
}

func (d *ServerDeps) HandleBestSession(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	s, err := d.Compliance.BestSession(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version_id": id, "session": s})
}

func (d *ServerDeps) HandleReviewStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "versionID", "version_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	st, err := d.Compliance.HasFinalizedReview(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d *ServerDeps) HandleListReviewEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID", "session_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	evs, err := d.Compliance.Events(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "events": evs})
}

func (d *ServerDeps) HandleRecordDecision(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	id, err := idParam(r, "sessionID", "session_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	var req decisionReq
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := d.Compliance.RecordDecision(r.Context(), compliance.DecisionInput{
		SessionID: id,
		Rule:      domain.RuleRef{Code: req.RuleCode, Version: req.RuleVersion},
		Decision:  req.Decision,
		Comment:   req.Comment,
	})
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (d *ServerDeps) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID", "session_id")
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	s, err := d.Compliance.Finalize(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
