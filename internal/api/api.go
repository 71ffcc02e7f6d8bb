// Package api is the HTTP boundary over the matching engines. It owns no
// matching logic: handlers resolve identifiers, validate parameters, invoke
// an engine, and translate its outcome. Restriction is rendered as data;
// only structural errors become error statuses.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/entitlement"
	"github.com/almamatch/almamatch/internal/market"
	"github.com/almamatch/almamatch/internal/recommend"
	"github.com/almamatch/almamatch/internal/suggest"
	"github.com/almamatch/almamatch/internal/vectormath"
)

// Recommender is the applicant-facing engine surface.
type Recommender interface {
	Recommend(ctx context.Context, viewerID uuid.UUID, referencePostID *uuid.UUID) (*recommend.Result, error)
	MatchScore(ctx context.Context, viewerID, postID uuid.UUID) (string, error)
}

// Suggester is the institution-facing engine surface.
type Suggester interface {
	Suggest(ctx context.Context, postID uuid.UUID, minMatchScore int) ([]suggest.RankedApplicant, error)
}

// ApplicationWriter covers the gated apply write path.
type ApplicationWriter interface {
	GetPlanTier(ctx context.Context, applicantID uuid.UUID) (entitlement.PlanTier, error)
	CreateApplication(ctx context.Context, applicantID, postID uuid.UUID) (*market.Application, error)
}

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	recommender  Recommender
	suggester    Suggester
	applications ApplicationWriter
	apiToken     string
	validate     *validator.Validate
	logger       *zap.Logger
}

// NewHandlers returns the configured handler set. apiToken protects the
// institution-side sourcing endpoint; when empty that endpoint is disabled.
func NewHandlers(recommender Recommender, suggester Suggester, applications ApplicationWriter, apiToken string, logger *zap.Logger) *Handlers {
	return &Handlers{
		recommender:  recommender,
		suggester:    suggester,
		applications: applications,
		apiToken:     apiToken,
		validate:     validator.New(),
		logger:       logger,
	}
}

// Router assembles the route tree.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/applicants/{applicantID}/recommendations", h.recommendations)
		r.Get("/applicants/{applicantID}/match/{postID}", h.matchScore)
		r.Post("/posts/{postID}/applications", h.apply)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIToken)
			r.Get("/posts/{postID}/suggestions", h.suggestions)
		})
	})

	return r
}

type recommendationItem struct {
	PostID      string `json:"post_id"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	DegreeLevel string `json:"degree_level"`
	Discipline  string `json:"discipline"`
	Score       string `json:"score"`
}

type recommendationsResponse struct {
	Restricted     bool                 `json:"restricted"`
	UpgradeMessage string               `json:"upgrade_message,omitempty"`
	Items          []recommendationItem `json:"items"`
}

func (h *Handlers) recommendations(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := pathUUID(w, r, "applicantID")
	if !ok {
		return
	}

	var referenceID *uuid.UUID
	if raw := r.URL.Query().Get("reference"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reference must be a valid post id")
			return
		}
		referenceID = &id
	}

	result, err := h.recommender.Recommend(r.Context(), viewerID, referenceID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := recommendationsResponse{
		Restricted:     result.Restricted,
		UpgradeMessage: result.UpgradeMessage,
		Items:          make([]recommendationItem, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, recommendationItem{
			PostID:      item.Post.ID.String(),
			Title:       item.Post.Title,
			Kind:        string(item.Post.Kind),
			DegreeLevel: string(item.Post.DegreeLevel),
			Discipline:  item.Post.DisciplineID,
			Score:       item.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) matchScore(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := pathUUID(w, r, "applicantID")
	if !ok {
		return
	}
	postID, ok := pathUUID(w, r, "postID")
	if !ok {
		return
	}

	score, err := h.recommender.MatchScore(r.Context(), viewerID, postID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"post_id": postID.String(),
		"score":   score,
	})
}

type suggestionsParams struct {
	MinScore int `validate:"gte=0,lte=100"`
}

type suggestionItem struct {
	ApplicantID string  `json:"applicant_id"`
	Name        string  `json:"name"`
	DegreeLevel string  `json:"degree_level"`
	Discipline  string  `json:"discipline"`
	GPA         float64 `json:"gpa"`
	Score       string  `json:"score"`
}

func (h *Handlers) suggestions(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathUUID(w, r, "postID")
	if !ok {
		return
	}

	params := suggestionsParams{MinScore: suggest.DefaultMinMatchScore}
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be an integer")
			return
		}
		params.MinScore = parsed
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "min_score must lie in [0,100]")
		return
	}

	ranked, err := h.suggester.Suggest(r.Context(), postID, params.MinScore)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	items := make([]suggestionItem, 0, len(ranked))
	for _, s := range ranked {
		items = append(items, suggestionItem{
			ApplicantID: s.Applicant.ID.String(),
			Name:        s.Applicant.Name,
			DegreeLevel: string(s.Applicant.DegreeLevel),
			Discipline:  s.Applicant.DisciplineID,
			GPA:         s.Applicant.GPA,
			Score:       s.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type applyRequest struct {
	ApplicantID string `json:"applicant_id" validate:"required,uuid"`
}

func (h *Handlers) apply(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathUUID(w, r, "postID")
	if !ok {
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "applicant_id is required")
		return
	}
	applicantID, err := uuid.Parse(req.ApplicantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "applicant_id must be a valid uuid")
		return
	}

	tier, err := h.applications.GetPlanTier(r.Context(), applicantID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if err := tier.RequireApply(); err != nil {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":   "upgrade_required",
			"message": err.Error(),
		})
		return
	}

	app, err := h.applications.CreateApplication(r.Context(), applicantID, postID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"application_id": app.ID.String(),
		"status":         string(app.Status),
	})
}

// requireAPIToken guards institution endpoints with a static bearer token.
// An unconfigured token denies everything.
func (h *Handlers) requireAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiToken == "" {
			writeError(w, http.StatusServiceUnavailable, "sourcing API is not configured")
			return
		}

		provided := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, market.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, market.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entitlement.ErrUpgradeRequired):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":   "upgrade_required",
			"message": err.Error(),
		})
	case errors.Is(err, vectormath.ErrInvalidVector):
		h.logger.Error("vector integrity failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		h.logger.Error("handler failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
