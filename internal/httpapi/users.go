package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/auth"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

type meResponse struct {
	UID        string     `json:"uid"`
	Email      string     `json:"email"`
	Role       model.Role `json:"role"`
	Registered bool       `json:"registered"`
}

// handleMe returns the caller's registry entry, or the token identity when
// the caller is not registered.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	u, err := s.store.GetUser(r.Context(), id.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, meResponse{UID: u.ID, Email: u.Email, Role: u.Role, Registered: true})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusOK, meResponse{UID: id.UserID, Email: id.Email, Role: id.Role})
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u := &model.User{Email: req.Email, Role: role}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, _ := auth.FromContext(r.Context())
	s.log.Info("user created", "email", u.Email, "role", u.Role, "by", caller.Email)
	writeJSON(w, http.StatusCreated, u)
}

type deleteUserRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, _ := auth.FromContext(r.Context())
	if caller.Email != "" && strings.EqualFold(caller.Email, strings.TrimSpace(req.Email)) {
		s.fail(w, r, badRequest("cannot delete your own user"))
		return
	}
	if err := s.store.DeleteUserByEmail(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("user deleted", "email", req.Email, "by", caller.Email)
	writeMessage(w, http.StatusOK, "user deleted")
}
