package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/analytics"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
)

const defaultAnalyticsDays = 30

func (s *Server) termsRoutes(r chi.Router) {
	r.Get("/", s.handleGetTerms)
	r.Get("/preview", s.handlePreviewTerms)
	r.With(requireAdmin).Post("/", s.handleSaveTerms)
}

func (s *Server) handleGetTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := s.store.GetSearchTerms(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, normalizeTerms(terms))
}

func (s *Server) handleSaveTerms(w http.ResponseWriter, r *http.Request) {
	var terms model.SearchTerms
	if err := s.decode(w, r, &terms); err != nil {
		s.fail(w, r, err)
		return
	}
	terms = normalizeTerms(terms)
	if err := s.store.SaveSearchTerms(r.Context(), terms); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("search terms saved",
		"brand_main", len(terms.Brand.MainTerms),
		"competitors_main", len(terms.Competitors.MainTerms),
	)
	writeJSON(w, http.StatusOK, terms)
}

type previewResponse struct {
	Brand       string `json:"brand"`
	Competitors string `json:"competitors"`
}

// handlePreviewTerms shows the search queries the stored terms produce.
func (s *Server) handlePreviewTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := s.store.GetSearchTerms(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := monitor.Queries(terms)
	writeJSON(w, http.StatusOK, previewResponse{
		Brand:       q[model.GroupBrand],
		Competitors: q[model.GroupCompetitors],
	})
}

func normalizeTerms(t model.SearchTerms) model.SearchTerms {
	return model.SearchTerms{
		Brand:       normalizeGroup(t.Brand),
		Competitors: normalizeGroup(t.Competitors),
	}
}

func normalizeGroup(g model.TermGroup) model.TermGroup {
	return model.TermGroup{
		MainTerms:     cleanList(g.MainTerms),
		Synonyms:      cleanList(g.Synonyms),
		ExcludedTerms: cleanList(g.ExcludedTerms),
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Server) analyticsRoutes(r chi.Router) {
	r.Get("/combined_view", s.handleCombinedView)
	r.Get("/kpis", s.handleKPIs)
	r.Get("/entities_cloud", s.handleEntitiesCloud)
	r.Get("/mentions", s.handleMentions)
}

func groupAndDays(r *http.Request) (model.SearchGroup, int, error) {
	group := model.SearchGroup(r.URL.Query().Get("search_group"))
	if group == "" {
		group = model.GroupBrand
	}
	days, err := intQuery(r, "days", defaultAnalyticsDays)
	return group, days, err
}

func (s *Server) handleCombinedView(w http.ResponseWriter, r *http.Request) {
	group, days, err := groupAndDays(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.analytics.CombinedView(r.Context(), group, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	group, days, err := groupAndDays(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kpis, err := s.analytics.KPIs(r.Context(), group, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func (s *Server) handleEntitiesCloud(w http.ResponseWriter, r *http.Request) {
	group, days, err := groupAndDays(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cloud, err := s.analytics.EntitiesCloud(r.Context(), group, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cloud)
}

func (s *Server) handleMentions(w http.ResponseWriter, r *http.Request) {
	group, days, err := groupAndDays(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	size, err := intQuery(r, "page_size", 10)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.analytics.Mentions(r.Context(), analytics.MentionsQuery{
		Group:    group,
		Days:     days,
		Page:     page,
		PageSize: size,
		Entity:   strings.TrimSpace(r.URL.Query().Get("entity")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
