package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CompleteQuizRequest is the body of a quiz completion
type CompleteQuizRequest struct {
	Score int `json:"score"`
}

// UnlockGameRequest is the body of a game unlock
type UnlockGameRequest struct {
	Cost int64 `json:"cost"`
}

// GetProfile returns the caller's profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.ledger.GetProfile(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, profile)
}

// DeleteProfile removes the caller's profile and ends the session
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := h.ledger.DeleteProfile(r.Context(), session.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.auth.SignOutEverywhere(r.Context(), session.UserID); err != nil {
		h.logger.Warn("failed to revoke sessions of deleted profile", "user_id", session.UserID, "error", err)
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// GetCompletions returns the caller's completion records
func (h *Handler) GetCompletions(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.GetCompletions(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, records)
}

// GetUnlocks returns the caller's unlock records
func (h *Handler) GetUnlocks(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.GetUnlocks(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, records)
}

// CompleteVideo grants the video reward
func (h *Handler) CompleteVideo(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.CompleteVideo(r.Context(), sessionFrom(r).UserID, chi.URLParam(r, "videoID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// CompleteQuiz grants the quiz reward for the submitted score
func (h *Handler) CompleteQuiz(w http.ResponseWriter, r *http.Request) {
	var req CompleteQuizRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.ledger.CompleteQuiz(r.Context(), sessionFrom(r).UserID, chi.URLParam(r, "quizID"), req.Score)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// UnlockGame spends coins on a game
func (h *Handler) UnlockGame(w http.ResponseWriter, r *http.Request) {
	var req UnlockGameRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.ledger.UnlockGame(r.Context(), sessionFrom(r).UserID, chi.URLParam(r, "gameID"), req.Cost)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}
