package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/CrowderSoup/sprint-app/services"
	"github.com/gorilla/mux"
)

// SprintHandler exposes sprint-level operations.
type SprintHandler struct {
	sprintService *services.SprintService
}

func NewSprintHandler(sprintService *services.SprintService) *SprintHandler {
	return &SprintHandler{
		sprintService: sprintService,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// forced reports whether the client asked to bypass the destructive-change
// guard for this request.
func forced(r *http.Request) bool {
	return r.URL.Query().Get("force") == "true"
}

// writeMutationError maps service errors to responses: a tripped guard
// becomes 409 with the counts so the client can re-submit with force=true;
// everything else is a 500.
func writeMutationError(w http.ResponseWriter, err error) {
	var confirm *services.ConfirmationRequiredError
	if errors.As(err, &confirm) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status":        "confirmation_required",
			"message":       confirm.Error(),
			"sprintId":      confirm.SprintID,
			"previousCount": confirm.PreviousCount,
			"nextCount":     confirm.NextCount,
		})
		return
	}
	log.Printf("Mutation failed: %v", err)
	http.Error(w, "Server error", http.StatusInternalServerError)
}

// ListSprints returns every sprint held in memory.
func (h *SprintHandler) ListSprints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"sprints": h.sprintService.Sprints(),
	})
}

// GetSprint returns one sprint by id.
func (h *SprintHandler) GetSprint(w http.ResponseWriter, r *http.Request) {
	sprintID := mux.Vars(r)["id"]
	sprint := h.sprintService.SprintByID(sprintID)
	if sprint == nil {
		http.Error(w, "Sprint not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"sprint": sprint,
	})
}

// GetCurrentSprint returns the selected sprint id.
func (h *SprintHandler) GetCurrentSprint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "success",
		"currentSprintId": h.sprintService.CurrentSprintID(),
	})
}

// SetCurrentSprint selects the sprint mutations operate on.
func (h *SprintHandler) SetCurrentSprint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SprintID string `json:"sprintId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := h.sprintService.SetCurrentSprint(req.SprintID); err != nil {
		http.Error(w, "Sprint not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// CreateNextSprint appends the next numbered sprint.
func (h *SprintHandler) CreateNextSprint(w http.ResponseWriter, r *http.Request) {
	sprint, err := h.sprintService.CreateNextSprint()
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"sprint": sprint,
	})
}

// RecalculateDates rewrites every sprint's start and end date in sequence.
func (h *SprintHandler) RecalculateDates(w http.ResponseWriter, r *http.Request) {
	if err := h.sprintService.RecalculateSprintDates(); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// UpdateWorkingDays replaces the current sprint's working-day vector.
func (h *SprintHandler) UpdateWorkingDays(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkingDays []bool `json:"workingDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := h.sprintService.UpdateSprintWorkingDays(req.WorkingDays, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// UpdateUserWorkingDays sets one user's working-day override.
func (h *SprintHandler) UpdateUserWorkingDays(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req struct {
		WorkingDays []bool `json:"workingDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := h.sprintService.UpdateUserWorkingDays(userID, req.WorkingDays, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
