package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"uspguard.org/internal/auth"
	"uspguard.org/internal/compliance"
	"uspguard.org/internal/obs"
)

const serviceName = "uspguard-api"

// ReadyProbe: простая проверка готовности (например, ping БД каталога).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options tunes the middleware stack.
//
// Signer issues and verifies session tokens; without one, the token
// endpoint answers 503 and authenticated routes reject every request.
// BootstrapKey lets an operator mint tokens before any admin token exists.
type Options struct {
	AuthEnabled  bool
	Signer       *auth.Signer
	BootstrapKey string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	CORSOrigins  []string
}

// API: HTTP слой над движком соответствия.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	engine     compliance.Service

	authEnabled  bool
	signer       *auth.Signer
	bootstrapKey string
	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
	corsOrigins  []string
}

func New(rp readinessChecker, version string, engine compliance.Service, opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		engine:       engine,
		authEnabled:  opts.AuthEnabled,
		signer:       opts.Signer,
		bootstrapKey: opts.BootstrapKey,
		rateBurst:    opts.RateBurst,
		ratePerSec:   opts.RatePerSec,
		maxBodyBytes: opts.MaxBodyBytes,
		corsOrigins:  opts.CORSOrigins,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("GET /v1/users", a.listUsers)
	a.mux.Handle("POST /v1/users", a.writer(a.createUser))
	a.mux.HandleFunc("GET /v1/users/{id}", a.getUser)

	a.mux.HandleFunc("GET /v1/chapters", a.listChapters)
	a.mux.Handle("POST /v1/chapters", a.writer(a.createChapter))
	a.mux.HandleFunc("GET /v1/chapters/{id}", a.getChapter)
	a.mux.HandleFunc("GET /v1/chapters/{id}/compliance", a.chapterCompliance)

	a.mux.HandleFunc("GET /v1/requirements", a.listRequirements)
	a.mux.Handle("POST /v1/requirements", a.writer(a.createRequirement))
	a.mux.HandleFunc("GET /v1/requirements/{id}", a.getRequirement)

	a.mux.HandleFunc("GET /v1/compliance", a.listCompliance)
	a.mux.Handle("POST /v1/compliance", a.writer(a.createCompliance))
	a.mux.HandleFunc("GET /v1/compliance/summary", a.complianceSummary)
	a.mux.HandleFunc("GET /v1/compliance/{id}", a.getCompliance)
	a.mux.Handle("PATCH /v1/compliance/{id}", a.writer(a.updateCompliance))

	a.mux.HandleFunc("GET /v1/tasks", a.listTasks)
	a.mux.Handle("POST /v1/tasks", a.writer(a.createTask))
	a.mux.HandleFunc("GET /v1/tasks/{id}", a.getTask)
	a.mux.Handle("PATCH /v1/tasks/{id}", a.writer(a.updateTask))

	a.mux.HandleFunc("GET /v1/documents", a.listDocuments)
	a.mux.Handle("POST /v1/documents", a.writer(a.createDocument))
	a.mux.HandleFunc("GET /v1/documents/{id}", a.getDocument)
	a.mux.Handle("PATCH /v1/documents/{id}", a.writer(a.updateDocument))
	a.mux.Handle("DELETE /v1/documents/{id}", a.writer(a.deleteDocument))

	a.mux.HandleFunc("GET /v1/trainings", a.listTrainings)
	a.mux.Handle("POST /v1/trainings", a.writer(a.createTraining))
	a.mux.HandleFunc("GET /v1/trainings/{id}", a.getTraining)
	a.mux.Handle("PATCH /v1/trainings/{id}", a.writer(a.updateTraining))

	a.mux.HandleFunc("GET /v1/audits", a.listAudits)
	a.mux.Handle("POST /v1/audits", a.writer(a.recordAudit))

	a.mux.HandleFunc("GET /v1/gap-analyses", a.listGapAnalyses)
	a.mux.Handle("POST /v1/gap-analyses", a.writer(a.createGapAnalysis))
	a.mux.HandleFunc("GET /v1/gap-analyses/{id}", a.getGapAnalysis)
	a.mux.Handle("PATCH /v1/gap-analyses/{id}", a.writer(a.updateGapAnalysis))

	a.mux.HandleFunc("GET /v1/inspections", a.listInspections)
	a.mux.Handle("POST /v1/inspections", a.writer(a.createInspection))
	a.mux.HandleFunc("GET /v1/inspections/{id}", a.getInspection)
	a.mux.Handle("PATCH /v1/inspections/{id}", a.writer(a.updateInspection))

	a.mux.HandleFunc("GET /v1/risk-assessments", a.listRiskAssessments)
	a.mux.Handle("POST /v1/risk-assessments", a.writer(a.createRiskAssessment))
	a.mux.HandleFunc("GET /v1/risk-assessments/{id}", a.getRiskAssessment)
	a.mux.Handle("PATCH /v1/risk-assessments/{id}", a.writer(a.updateRiskAssessment))

	a.mux.HandleFunc("GET /v1/critical-issues", a.criticalIssues)
	a.mux.HandleFunc("GET /v1/dashboard", a.dashboard)
	a.mux.HandleFunc("GET /v1/pharmacies", a.listPharmacies)
}

// Handler returns the full middleware stack around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins...)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads one JSON value. The body size limit is the one installed
// by MaxBodyBytes from Options.MaxBodyBytes.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// writeDecodeError answers a failed decodeJSON: 413 when the body exceeded
// the configured limit, 400 otherwise.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}

func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, compliance.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, compliance.ErrInvalidReference):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, compliance.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

// pathID parses the {id} wildcard. It writes a 404 and reports false when the
// segment is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	return id, true
}

// pharmacyParam returns the required pharmacy_id query parameter.
func pharmacyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := strings.TrimSpace(r.URL.Query().Get("pharmacy_id"))
	if p == "" {
		writeError(w, r, http.StatusBadRequest, "pharmacy_id query parameter is required")
		return "", false
	}
	return p, true
}

// limitParam parses ?limit=, returning 0 (engine default) when absent.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 0, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return limit, true
}

func flag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
