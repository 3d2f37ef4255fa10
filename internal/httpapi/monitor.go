package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

func (s *Server) monitorRoutes(r chi.Router) {
	r.Post("/run", s.startTask(monitor.TaskFull))
	r.Post("/run/relevant", s.startTask(monitor.TaskRelevant))
	r.Post("/run/continuous", s.startTask(monitor.TaskContinuous))
	r.Post("/run/historical-scheduled", s.startTask(monitor.TaskHistorical))

	r.Get("/system-status", s.handleSystemStatus)
	r.Get("/historical-status", s.handleHistoricalStatus)
	r.Get("/summary", s.handleSummary)
	r.Get("/latest", s.handleLatest)
	r.Get("/historical", s.handleHistorical)
	r.Get("/logs", s.handleRequestLogs)
	r.Get("/quota", s.handleQuota)
	r.Get("/system-logs", s.handleSystemLogs)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/update-historical-start-date", s.handleUpdateStartDate)
		r.Delete("/all-data", s.handlePurge)
		r.Post("/results/{id}/analysis", s.handleSaveAnalysis)
	})
}

type taskAccepted struct {
	Status  string       `json:"status"`
	Task    monitor.Task `json:"task"`
	Message string       `json:"message"`
}

// startTask runs task in the background, detached from the request but bound
// to the server's task context.
func (s *Server) startTask(task monitor.Task) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.monitor.Start(s.taskCtx, task); err != nil {
			s.fail(w, r, err)
			return
		}
		s.log.Info("task accepted", "task", task, "path", r.URL.Path)
		writeJSON(w, http.StatusAccepted, taskAccepted{
			Status:  "accepted",
			Task:    task,
			Message: fmt.Sprintf("%s monitoring started in the background", task),
		})
	}
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.monitor.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistoricalStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.monitor.HistoricalStatus(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.monitor.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.monitor.Latest(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	hist, err := s.monitor.Historical(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func logLimit(r *http.Request) (int, error) {
	limit, err := intQuery(r, "limit", defaultLogLimit)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > maxLogLimit {
		return 0, badRequest("limit must be between 1 and %d", maxLogLimit)
	}
	return limit, nil
}

func (s *Server) handleRequestLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := logLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logs, err := s.monitor.RequestLogs(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := logLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logs, err := s.monitor.SystemLogs(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type quotaResponse struct {
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Max       int    `json:"max"`
	Remaining int    `json:"remaining"`
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	rec, err := s.quota.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit := s.quota.Max()
	writeJSON(w, http.StatusOK, quotaResponse{
		Date:      rec.Date,
		Used:      rec.Count,
		Max:       limit,
		Remaining: max(0, limit-rec.Count),
	})
}

type startDateRequest struct {
	StartDate string `json:"historical_start_date" validate:"required,datetime=2006-01-02"`
}

func (s *Server) handleUpdateStartDate(w http.ResponseWriter, r *http.Request) {
	var req startDateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	day, err := model.ParseDay(req.StartDate)
	if err != nil {
		s.fail(w, r, badRequest("historical_start_date must be YYYY-MM-DD"))
		return
	}
	if err := s.monitor.UpdateHistoricalStartDate(r.Context(), day); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "historical start date set to "+req.StartDate)
}

type purgeResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.monitor.Purge(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purgeResponse{Status: "ok", Deleted: n})
}

func (s *Server) handleSaveAnalysis(w http.ResponseWriter, r *http.Request) {
	var a model.ResultAnalysis
	if err := s.decode(w, r, &a); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.monitor.SaveAnalysis(r.Context(), chi.URLParam(r, "id"), a); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "analysis saved")
}
