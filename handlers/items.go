package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/CrowderSoup/sprint-app/services"
	"github.com/gorilla/mux"
)

// ItemHandler exposes item and task operations on the current sprint.
type ItemHandler struct {
	sprintService *services.SprintService
}

func NewItemHandler(sprintService *services.SprintService) *ItemHandler {
	return &ItemHandler{
		sprintService: sprintService,
	}
}

// deleteMode maps the mode query parameter to a DeleteMode. Soft deletion
// is the default; mode=purge requests the legacy hard delete.
func deleteMode(r *http.Request) database.DeleteMode {
	if r.URL.Query().Get("mode") == "purge" {
		return database.Purge
	}
	return database.MarkRemoved
}

// AddItem appends an item to the current sprint.
func (h *ItemHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var item database.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if item.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	if item.State == "" {
		item.State = database.StateToDo
	}
	if item.Priority == "" {
		item.Priority = database.PriorityNormal
	}
	if !item.State.Valid() || !item.Priority.Valid() {
		http.Error(w, "Invalid state or priority", http.StatusBadRequest)
		return
	}

	if err := h.sprintService.AddItem(item, userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// UpdateItem applies a partial update to an item.
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	itemID := mux.Vars(r)["id"]

	var upd database.ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := upd.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sprintService.UpdateItem(itemID, upd, userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeleteItem removes an item, softly by default.
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if err := h.sprintService.RemoveItem(itemID, deleteMode(r), forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// MoveItem moves an item from the current sprint to another sprint.
func (h *ItemHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	var req struct {
		TargetSprintID string `json:"targetSprintId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.sprintService.MoveItemToSprint(itemID, req.TargetSprintID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DuplicateItem clones an item, optionally with its tasks.
func (h *ItemHandler) DuplicateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	itemID := mux.Vars(r)["id"]
	var req struct {
		IncludeTasks bool `json:"includeTasks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.sprintService.DuplicateItem(itemID, req.IncludeTasks, userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// SplitItem finalizes an item: Done tasks stay, the rest move to a copy.
func (h *ItemHandler) SplitItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	itemID := mux.Vars(r)["id"]

	if err := h.sprintService.CopyItemWithTaskSplit(itemID, userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// SortTasks orders an item's tasks by state and priority.
func (h *ItemHandler) SortTasks(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if err := h.sprintService.SortItemTasks(itemID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// AddTask appends a task to an item.
func (h *ItemHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	itemID := mux.Vars(r)["id"]

	var task database.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if task.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	if task.State == "" {
		task.State = database.StateToDo
	}
	if task.Priority == "" {
		task.Priority = database.PriorityNormal
	}
	if !task.State.Valid() || !task.Priority.Valid() {
		http.Error(w, "Invalid state or priority", http.StatusBadRequest)
		return
	}

	if err := h.sprintService.AddTask(itemID, task, userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// UpdateTask applies a partial update to a task.
func (h *ItemHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	var upd database.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := upd.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sprintService.UpdateTask(vars["taskId"], vars["itemId"], upd, userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeleteTask removes a task, softly by default.
func (h *ItemHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.sprintService.RemoveTask(vars["taskId"], vars["itemId"], deleteMode(r), forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DuplicateTask clones a task within its item.
func (h *ItemHandler) DuplicateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	if err := h.sprintService.DuplicateTask(vars["taskId"], vars["itemId"], userID, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// MoveTask moves a task between items (drag and drop).
func (h *ItemHandler) MoveTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromItemID string `json:"fromItemId"`
		ToItemID   string `json:"toItemId"`
		TaskID     string `json:"taskId"`
		NewIndex   int    `json:"newIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.sprintService.MoveTask(req.FromItemID, req.ToItemID, req.TaskID, req.NewIndex, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ReorderTasks moves a task within its item (drag and drop).
func (h *ItemHandler) ReorderTasks(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	var req struct {
		OldIndex int `json:"oldIndex"`
		NewIndex int `json:"newIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.sprintService.ReorderTasks(itemID, req.OldIndex, req.NewIndex, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
