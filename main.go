package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/CrowderSoup/sprint-app/handlers"
	"github.com/CrowderSoup/sprint-app/services"
	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/cors"
)

func main() {
	// Load environment variables from .env file
	err := services.LoadEnv(".env")
	if err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
		return
	}

	// Initialize database
	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	store := database.NewStore(db)

	// Initialize services
	authService := services.NewAuthService(store)
	sprintService := services.NewSprintService(store)
	defer sprintService.Close()

	// Initialize WebSocket hub and wire it to the store's snapshot feed
	hub := services.NewHub()
	go hub.Run()
	defer hub.WatchStore(store)()

	// Load sprints (bootstrapping sprint-1 on first run) and subscribe
	if err := sprintService.GenerateSprints(); err != nil {
		log.Fatalf("Failed to load sprints: %v", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	sprintHandler := handlers.NewSprintHandler(sprintService)
	itemHandler := handlers.NewItemHandler(sprintService)
	commentHandler := handlers.NewCommentHandler(store)
	transferHandler := handlers.NewTransferHandler(store, sprintService, hub)
	authMiddleware := handlers.NewAuthMiddleware(authService)

	// Setup router
	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/verify", authHandler.VerifyToken).Methods("GET")
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)

	// Sprint routes
	api.HandleFunc("/sprints", sprintHandler.ListSprints).Methods("GET")
	api.HandleFunc("/sprints/next", sprintHandler.CreateNextSprint).Methods("POST")
	api.HandleFunc("/sprints/recalculate-dates", sprintHandler.RecalculateDates).Methods("POST")
	api.HandleFunc("/sprints/{id}", sprintHandler.GetSprint).Methods("GET")
	api.HandleFunc("/sprints/{id}/export-summary", transferHandler.ExportSprintSummary).Methods("GET")
	api.HandleFunc("/current-sprint", sprintHandler.GetCurrentSprint).Methods("GET")
	api.HandleFunc("/current-sprint", sprintHandler.SetCurrentSprint).Methods("PUT")
	api.HandleFunc("/working-days", sprintHandler.UpdateWorkingDays).Methods("PUT")
	api.HandleFunc("/working-days/{userId}", sprintHandler.UpdateUserWorkingDays).Methods("PUT")

	// Item and task routes (operate on the current sprint)
	api.HandleFunc("/items", itemHandler.AddItem).Methods("POST")
	api.HandleFunc("/items/{id}", itemHandler.UpdateItem).Methods("PATCH")
	api.HandleFunc("/items/{id}", itemHandler.DeleteItem).Methods("DELETE")
	api.HandleFunc("/items/{id}/move", itemHandler.MoveItem).Methods("POST")
	api.HandleFunc("/items/{id}/duplicate", itemHandler.DuplicateItem).Methods("POST")
	api.HandleFunc("/items/{id}/split", itemHandler.SplitItem).Methods("POST")
	api.HandleFunc("/items/{id}/sort-tasks", itemHandler.SortTasks).Methods("POST")
	api.HandleFunc("/items/{id}/tasks", itemHandler.AddTask).Methods("POST")
	api.HandleFunc("/items/{id}/tasks/reorder", itemHandler.ReorderTasks).Methods("POST")
	api.HandleFunc("/items/{itemId}/tasks/{taskId}", itemHandler.UpdateTask).Methods("PATCH")
	api.HandleFunc("/items/{itemId}/tasks/{taskId}", itemHandler.DeleteTask).Methods("DELETE")
	api.HandleFunc("/items/{itemId}/tasks/{taskId}/duplicate", itemHandler.DuplicateTask).Methods("POST")
	api.HandleFunc("/tasks/move", itemHandler.MoveTask).Methods("POST")

	// Comment and change-history routes
	api.HandleFunc("/comments", commentHandler.AddComment).Methods("POST")
	api.HandleFunc("/comments", commentHandler.ListComments).Methods("GET")
	api.HandleFunc("/comments/{id}", commentHandler.UpdateComment).Methods("PATCH")
	api.HandleFunc("/comments/{id}", commentHandler.DeleteComment).Methods("DELETE")
	api.HandleFunc("/changes", commentHandler.ListChanges).Methods("GET")

	// Import / export
	api.HandleFunc("/import", transferHandler.ImportItems).Methods("POST")
	api.HandleFunc("/export", transferHandler.ExportAll).Methods("GET")

	// WebSocket route for real-time updates
	api.HandleFunc("/ws", transferHandler.HandleWebSocket)

	// Static file server for frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./")))

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // In production, change to your domain
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Server starting on port %s", port)
	log.Fatal(server.ListenAndServe())
}
