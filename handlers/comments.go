package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CommentHandler exposes comments and the change-history audit trail.
type CommentHandler struct {
	store *database.Store
}

func NewCommentHandler(store *database.Store) *CommentHandler {
	return &CommentHandler{store: store}
}

// AddComment appends a comment to an item or task.
func (h *CommentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		AssociatedID   string                  `json:"associatedId"`
		AssociatedType database.AssociatedType `json:"associatedType"`
		Description    string                  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.AssociatedID == "" || req.Description == "" {
		http.Error(w, "associatedId and description are required", http.StatusBadRequest)
		return
	}
	if req.AssociatedType != database.AssociatedItem && req.AssociatedType != database.AssociatedTask {
		http.Error(w, "associatedType must be 'item' or 'task'", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	comment := database.Comment{
		ID:             uuid.NewString(),
		AssociatedID:   req.AssociatedID,
		AssociatedType: req.AssociatedType,
		UserID:         userID,
		Description:    req.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.AddComment(&comment); err != nil {
		log.Printf("Error saving comment: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"comment": comment,
	})
}

// ListComments returns the comments for one item or task, oldest first.
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	associatedID := r.URL.Query().Get("associatedId")
	if associatedID == "" {
		http.Error(w, "associatedId is required", http.StatusBadRequest)
		return
	}

	comments, err := h.store.CommentsByAssociatedID(associatedID)
	if err != nil {
		log.Printf("Error querying comments: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if comments == nil {
		comments = []database.Comment{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"comments": comments,
	})
}

// UpdateComment rewrites a comment's text.
func (h *CommentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	commentID := mux.Vars(r)["id"]
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateComment(commentID, req.Description, time.Now().UTC()); err != nil {
		log.Printf("Error updating comment: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeleteComment removes a comment.
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID := mux.Vars(r)["id"]
	if err := h.store.DeleteComment(commentID); err != nil {
		log.Printf("Error deleting comment: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ListChanges returns the audit trail for one item or task, oldest first.
// The trail is read-only: there is no write endpoint beyond the entries the
// services record themselves.
func (h *CommentHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	associatedID := r.URL.Query().Get("associatedId")
	if associatedID == "" {
		http.Error(w, "associatedId is required", http.StatusBadRequest)
		return
	}

	changes, err := h.store.ChangesByAssociatedID(associatedID)
	if err != nil {
		log.Printf("Error querying changes: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if changes == nil {
		changes = []database.ChangeHistory{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"changes": changes,
	})
}
