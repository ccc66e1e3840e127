package transporthttp

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/labelengine/internal/compliance"
	"example.com/labelengine/internal/config"
	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/labels"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
	"example.com/labelengine/internal/status"
	"example.com/labelengine/internal/storage"
)

type ServerDeps struct {
	Cfg        config.Config
	Store      storage.Store
	Labels     *labels.Service
	Compliance *compliance.Engine
	Status     *status.Timeline
	Log        *logger.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// decodeBody decodes the request body into v, writing a problem on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSONStrict(r, v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeProblem(w, problemFor(err))
			return false
		}
		writeProblem(w, Problem{Type: TypeInvalidJSON, Title: "invalid json", Status: http.StatusBadRequest, Detail: err.Error()})
		return false
	}
	return true
}

// idParam reads a positive integer URL parameter.
func idParam(r *http.Request, name, field string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(field, "must be a positive integer")
	}
	return id, nil
}

// limitParam reads ?limit=. Absent or non-numeric values yield 0, the service default;
// any other value is at least 1.
func limitParam(r *http.Request) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get("limit")), 64)
	switch {
	case err != nil || math.IsNaN(f) || math.IsInf(f, 0):
		return 0
	case f < 1:
		return 1
	case f > math.MaxInt32:
		return math.MaxInt32
	default:
		return int(f)
	}
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.Ready(r.Context()); err != nil {
		writeProblem(w, Problem{Type: TypeServiceUnavailable, Title: "not ready", Status: http.StatusServiceUnavailable, Detail: "store not reachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, RequestID, d.Instrument, middleware.Recoverer)

	r.Get("/healthz", d.HandleHealthz)
	r.Get("/readyz", d.HandleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	wizard := WizardKeyAuth(d.Cfg.WizardKey)
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(BodyLimit(d.Cfg.MaxBodyBytes), RequireJSON)

		api.Route("/labels", func(lr chi.Router) {
			lr.Get("/history", d.HandleHistoryFeed)
			lr.With(wizard).Post("/", d.HandleCreateOrUpdate)
			lr.With(wizard).Post("/generate", d.HandleGenerate)

			lr.Route("/{labelID}", func(one chi.Router) {
				one.Get("/", d.HandleGetLabel)
				one.Patch("/", d.HandlePatchLabelMetadata)
				one.With(wizard).Delete("/", d.HandleDeleteLabel)
				one.Get("/versions", d.HandleListVersions)
				one.Get("/draft", d.HandleGetDraft)
				one.With(wizard).Put("/draft", d.HandlePutDraft)
				one.With(wizard).Post("/publish", d.HandlePublishDraft)
			})
		})

		api.Route("/versions/{versionID}", func(vr chi.Router) {
			vr.With(wizard).Patch("/", d.HandleEditVersion)
			vr.Get("/diff", d.HandleVersionDiff)
			vr.Get("/review-session", d.HandleBestSession)
			vr.Get("/review-status", d.HandleReviewStatus)
			vr.Get("/status", d.HandleCurrentStatus)
			vr.Get("/status-events", d.HandleListStatusEvents)
			vr.Post("/status-events", d.HandleAppendStatusEvent)
		})

		api.Route("/compliance", func(cr chi.Router) {
			cr.Get("/rules", d.HandleListRules)
			cr.With(wizard).Put("/rules", d.HandlePutRule)
			cr.With(wizard).Patch("/rules", d.HandlePatchRule)
			cr.Post("/sessions", d.HandleStartSession)
			cr.Get("/sessions/{sessionID}/events", d.HandleListReviewEvents)
			cr.Post("/sessions/{sessionID}/events", d.HandleRecordDecision)
			cr.Post("/sessions/{sessionID}/finalize", d.HandleFinalize)
		})

		api.Get("/status/summary", d.HandleStatusSummary)
	})
	return r
}
