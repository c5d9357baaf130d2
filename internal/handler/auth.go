package handler

import (
	"net/http"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// Register creates an account with its profile and returns a token
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.deps.Users.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	h.writeData(w, http.StatusCreated, result)
}

// Login exchanges credentials for a token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.deps.Users.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}

	h.writeSuccess(w, result)
}
