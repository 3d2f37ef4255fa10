package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/instagram"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

const (
	maxSessionBytes     = 1 << 20
	defaultDashboardLim = 10
	defaultEvolveDays   = 30
)

func (s *Server) instagramRoutes(r chi.Router) {
	r.Get("/targets/profiles", s.handleListProfiles)
	r.Get("/targets/hashtags", s.handleListHashtags)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/targets/profiles", s.handleCreateProfile)
		r.Put("/targets/profiles/{name}/status", s.handleProfileStatus)
		r.Delete("/targets/profiles/{name}", s.handleDeleteProfile)

		r.Post("/targets/hashtags", s.handleCreateHashtag)
		r.Put("/targets/hashtags/{name}/status", s.handleHashtagStatus)
		r.Delete("/targets/hashtags/{name}", s.handleDeleteHashtag)

		r.Get("/service-accounts", s.handleListAccounts)
		r.Post("/service-accounts", s.handleCreateAccount)
		r.Put("/service-accounts/{id}/session", s.handleUploadSession)
		r.Delete("/service-accounts/{id}", s.handleDeleteAccount)

		r.Post("/ingest", s.handleIngest)
	})
}

func cleanUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

func cleanHashtag(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "#")
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []model.MonitoredProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

type profileRequest struct {
	Username string            `json:"username" validate:"required"`
	Type     model.ProfileType `json:"type" validate:"required,oneof=parlamentar concorrente midia"`
	IsActive *bool             `json:"is_active"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p := &model.MonitoredProfile{
		Username: cleanUsername(req.Username),
		Type:     req.Type,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if p.Username == "" {
		s.fail(w, r, badRequest("username is required"))
		return
	}
	if err := s.store.CreateProfile(r.Context(), p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("profile registered", "username", p.Username, "type", p.Type)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleProfileStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	name := cleanUsername(chi.URLParam(r, "name"))
	if err := s.store.SetProfileActive(r.Context(), name, *req.IsActive); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.store.GetProfile(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProfile(r.Context(), cleanUsername(chi.URLParam(r, "name"))); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "profile deleted")
}

func (s *Server) handleListHashtags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.ListHashtags(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tags == nil {
		tags = []model.MonitoredHashtag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

type hashtagRequest struct {
	Hashtag  string `json:"hashtag" validate:"required"`
	IsActive *bool  `json:"is_active"`
}

func (s *Server) handleCreateHashtag(w http.ResponseWriter, r *http.Request) {
	var req hashtagRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	h := &model.MonitoredHashtag{
		Hashtag:  cleanHashtag(req.Hashtag),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if h.Hashtag == "" {
		s.fail(w, r, badRequest("hashtag is required"))
		return
	}
	if err := s.store.CreateHashtag(r.Context(), h); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("hashtag registered", "hashtag", h.Hashtag)
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleHashtagStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	name := cleanHashtag(chi.URLParam(r, "name"))
	if err := s.store.SetHashtagActive(r.Context(), name, *req.IsActive); err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := s.store.GetHashtag(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeleteHashtag(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteHashtag(r.Context(), cleanHashtag(chi.URLParam(r, "name"))); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "hashtag deleted")
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// sessionFile reads the uploaded session_file part of a multipart form.
func sessionFile(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSessionBytes+64<<10)
	if err := r.ParseMultipartForm(maxSessionBytes); err != nil {
		return nil, badRequest("invalid multipart form: %v", err)
	}
	f, _, err := r.FormFile("session_file")
	if err != nil {
		return nil, badRequest("session_file is required")
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, maxSessionBytes+1))
	if err != nil {
		return nil, badRequest("read session_file: %v", err)
	}
	if len(data) > maxSessionBytes {
		return nil, badRequest("session_file exceeds %d bytes", maxSessionBytes)
	}
	return data, nil
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFile(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.accounts.Create(r.Context(), r.FormValue("username"), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFile(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.accounts.UploadSession(r.Context(), chi.URLParam(r, "id"), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "service account deleted")
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var b instagram.Batch
	if err := s.decode(w, r, &b); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.ingester.Ingest(r.Context(), b)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) dashboardRoutes(r chi.Router) {
	r.Get("/kpis-24h", s.handleDashKPIs)
	r.Get("/stories-24h", s.handleDashStories)
	r.Get("/sentiment-balance-24h", s.handleDashSentiment)
	r.Get("/top-terms-24h", s.handleDashTopTerms)
	r.Get("/alerts-24h", s.handleDashAlerts)
	r.Get("/engagement-evolution", s.handleDashEvolution)
	r.Get("/performance-by-content-type", s.handleDashContentType)
	r.Get("/posts-ranking", s.handleDashRanking)
	r.Get("/top-commenters", s.handleDashCommenters)
	r.Get("/head-to-head-engagement", s.handleDashHeadToHead)
	r.Get("/content-strategy-comparison", s.handleDashStrategy)
	r.Get("/hashtag-feed", s.handleDashHashtagFeed)
}

// respond writes v, or the error when err is set.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDashKPIs(w http.ResponseWriter, r *http.Request) {
	v, err := s.dashboard.KPIs24h(r.Context())
	s.respond(w, r, v, err)
}

func (s *Server) handleDashStories(w http.ResponseWriter, r *http.Request) {
	v, err := s.dashboard.Stories24h(r.Context())
	s.respond(w, r, v, err)
}

func (s *Server) handleDashSentiment(w http.ResponseWriter, r *http.Request) {
	v, err := s.dashboard.SentimentBalance24h(r.Context())
	s.respond(w, r, v, err)
}

func (s *Server) handleDashTopTerms(w http.ResponseWriter, r *http.Request) {
	v, err := s.dashboard.TopTerms24h(r.Context())
	s.respond(w, r, v, err)
}

func (s *Server) handleDashAlerts(w http.ResponseWriter, r *http.Request) {
	v, err := s.dashboard.Alerts24h(r.Context())
	s.respond(w, r, v, err)
}

func requiredQuery(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", badRequest("%s is required", name)
	}
	return v, nil
}

func (s *Server) handleDashEvolution(w http.ResponseWriter, r *http.Request) {
	user, err := requiredQuery(r, "username")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	days, err := intQuery(r, "days", defaultEvolveDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.dashboard.EngagementEvolution(r.Context(), cleanUsername(user), days)
	s.respond(w, r, v, err)
}

func (s *Server) handleDashContentType(w http.ResponseWriter, r *http.Request) {
	user, err := requiredQuery(r, "username")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.dashboard.PerformanceByContentType(r.Context(), cleanUsername(user))
	s.respond(w, r, v, err)
}

func (s *Server) handleDashRanking(w http.ResponseWriter, r *http.Request) {
	user, err := requiredQuery(r, "username")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", defaultDashboardLim)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "likes_count"
	}
	v, err := s.dashboard.PostsRanking(r.Context(), cleanUsername(user), sortBy, limit)
	s.respond(w, r, v, err)
}

func (s *Server) handleDashCommenters(w http.ResponseWriter, r *http.Request) {
	user, err := requiredQuery(r, "username")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", defaultDashboardLim)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = instagram.Supporters
	}
	v, err := s.dashboard.TopCommenters(r.Context(), cleanUsername(user), kind, limit)
	s.respond(w, r, v, err)
}

func (s *Server) handleDashHeadToHead(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultEvolveDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.dashboard.HeadToHeadEngagement(r.Context(), listQuery(r, "profiles"), days)
	s.respond(w, r, v, err)
}

func (s *Server) handleDashStrategy(w http.ResponseWriter, r *http.Request) {
	v, err := s.dashboard.ContentStrategyComparison(r.Context(), listQuery(r, "profiles"))
	s.respond(w, r, v, err)
}

func (s *Server) handleDashHashtagFeed(w http.ResponseWriter, r *http.Request) {
	tag, err := requiredQuery(r, "hashtag")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", defaultDashboardLim)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.dashboard.HashtagFeed(r.Context(), tag, limit)
	s.respond(w, r, v, err)
}
