package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/analytics"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/auth"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/instagram"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

const maxBodyBytes = 8 << 20

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type messageBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Status: "error", Error: msg})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageBody{Status: "ok", Message: msg})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps a domain error to its HTTP status and the message shown to
// the client.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, validationMessage(verrs)
	case errors.Is(err, errBadRequest),
		errors.Is(err, analytics.ErrInvalidQuery),
		errors.Is(err, instagram.ErrInvalidQuery),
		errors.Is(err, instagram.ErrInvalidAccount),
		errors.Is(err, instagram.ErrEmptyBatch),
		errors.Is(err, monitor.ErrInvalidStartDate),
		errors.Is(err, model.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, monitor.ErrBusy):
		return http.StatusConflict, "a monitoring task is already running"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, search.ErrNotConfigured):
		return http.StatusInternalServerError, "search api is not configured"
	case errors.Is(err, search.ErrUpstream):
		return http.StatusServiceUnavailable, "search api unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	writeError(w, code, msg)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return err
	}
	return nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return n, nil
}

func listQuery(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
