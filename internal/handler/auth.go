package handler

import (
	"net/http"

	"github.com/ecoquest-ledger/internal/domain"
)

// SignUpRequest is the body of a sign up
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Age      *int   `json:"age,omitempty"`
}

// SignInRequest is the body of a sign in
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates an account and returns its session
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, domain.SignUpAttributes{
		Name: req.Name,
		Age:  req.Age,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    session,
	})
}

// SignIn returns a session for valid credentials
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, session)
}

// SignOut ends the caller's session
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), sessionFrom(r).Token); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "signed_out"})
}

// GetSession returns the caller's session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, sessionFrom(r))
}
