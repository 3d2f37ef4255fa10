package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/filter"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

const (
	defaultRisingLimit = 20
	maxRisingLimit     = 100
	maxInterestDays    = 365
)

func (s *Server) trendsRoutes(r chi.Router) {
	r.Get("/terms", s.handleListTrendTerms)
	r.Get("/rising", s.handleRising)
	r.Get("/interest", s.handleInterest)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/terms", s.handleCreateTrendTerm)
		r.Put("/terms/{id}/status", s.handleTrendTermStatus)
		r.Delete("/terms/{id}", s.handleDeleteTrendTerm)
		r.Post("/interest", s.handleSaveInterest)
	})
}

func (s *Server) handleListTrendTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := s.store.ListTrendTerms(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if terms == nil {
		terms = []model.TrendTerm{}
	}
	writeJSON(w, http.StatusOK, terms)
}

type trendTermRequest struct {
	Term     string `json:"term" validate:"required"`
	IsActive *bool  `json:"is_active"`
}

func (s *Server) handleCreateTrendTerm(w http.ResponseWriter, r *http.Request) {
	var req trendTermRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	term := strings.TrimSpace(req.Term)
	if err := filter.ValidateTerm(term); err != nil {
		s.fail(w, r, badRequest("term: %v", err))
		return
	}
	t := &model.TrendTerm{Term: term, IsActive: req.IsActive == nil || *req.IsActive}
	if err := s.store.CreateTrendTerm(r.Context(), t); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("trend term created", "term", t.Term, "id", t.ID)
	writeJSON(w, http.StatusCreated, t)
}

type statusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func (s *Server) handleTrendTermStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.SetTrendTermActive(r.Context(), id, *req.IsActive); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.store.GetTrendTerm(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTrendTerm(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTrendTerm(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "trend term deleted")
}

// handleRising lists daily trending searches. Only those matching an active
// trend term are returned unless all=true.
func (s *Server) handleRising(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultRisingLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit < 1 || limit > maxRisingLimit {
		s.fail(w, r, badRequest("limit must be between 1 and %d", maxRisingLimit))
		return
	}
	items, err := s.store.ListTrendingSearches(r.Context(), r.URL.Query().Get("all") != "true", limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.TrendingSearch{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleInterest(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		s.fail(w, r, badRequest("term is required"))
		return
	}
	days, err := intQuery(r, "days", defaultAnalyticsDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if days < 1 || days > maxInterestDays {
		s.fail(w, r, badRequest("days must be between 1 and %d", maxInterestDays))
		return
	}
	to := s.now().UTC()
	points, err := s.store.ListTrendPoints(r.Context(), term, to.AddDate(0, 0, -days), to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if points == nil {
		points = []model.TrendPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

type interestRequest struct {
	Points []interestPoint `json:"points" validate:"required,min=1,dive"`
}

type interestPoint struct {
	Term  string `json:"term" validate:"required"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Value int    `json:"value" validate:"gte=0,lte=100"`
}

// handleSaveInterest stores interest-over-time values pushed by the trends
// collector.
func (s *Server) handleSaveInterest(w http.ResponseWriter, r *http.Request) {
	var req interestRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	points := make([]model.TrendPoint, 0, len(req.Points))
	for _, p := range req.Points {
		points = append(points, model.TrendPoint{Term: strings.TrimSpace(p.Term), Date: p.Date, Value: p.Value})
	}
	if err := s.store.SaveTrendPoints(r.Context(), points); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "saved": len(points)})
}
