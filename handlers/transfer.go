package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/CrowderSoup/sprint-app/services"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// maxImportSize bounds the accepted import payload.
const maxImportSize = 5 * 1024 * 1024 // 5MB

// TransferHandler exposes import, export and the live-update websocket.
type TransferHandler struct {
	store         *database.Store
	sprintService *services.SprintService
	hub           *services.Hub
}

func NewTransferHandler(store *database.Store, sprintService *services.SprintService, hub *services.Hub) *TransferHandler {
	return &TransferHandler{
		store:         store,
		sprintService: sprintService,
		hub:           hub,
	}
}

// ImportItems accepts a JSON array of item-shaped records, sanitizes it and
// appends the result to the current sprint. Any invalid record aborts the
// whole batch.
func (h *TransferHandler) ImportItems(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	users, err := h.store.GetAllUsers()
	if err != nil {
		log.Printf("Error loading users for import: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	result, err := services.SanitizeImportedItems(data, users)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sprintService.ImportItems(result.Items, forced(r)); err != nil {
		writeMutationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"totalItems": result.TotalItems,
		"totalTasks": result.TotalTasks,
	})
}

// ExportAll streams the full database as one JSON bundle.
func (h *TransferHandler) ExportAll(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.store.ExportAll()
	if err != nil {
		log.Printf("Error exporting data: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// ExportSprintSummary returns one sprint's Done work plus the
// summarization prompt.
func (h *TransferHandler) ExportSprintSummary(w http.ResponseWriter, r *http.Request) {
	sprintID := mux.Vars(r)["id"]
	sprint := h.sprintService.SprintByID(sprintID)
	if sprint == nil {
		http.Error(w, "Sprint not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, services.ExportSprintSummary(sprint))
}

// HandleWebSocket upgrades the HTTP connection to a WebSocket connection
func (h *TransferHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	// Upgrade HTTP connection to WebSocket
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	// Register client in the hub. A user may hold several connections
	// (multiple tabs or devices); the hub tracks each separately.
	client := &services.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}

	h.hub.Register(client)
	log.Printf("WebSocket client registered: %s", userID)

	// Start goroutines for reading and writing
	go client.WritePump()
	go client.ReadPump()
}
