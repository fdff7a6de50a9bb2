package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/CrowderSoup/sprint-app/services"
)

type testEnv struct {
	store         *database.Store
	sprintService *services.SprintService
	authService   *services.AuthService
	router        *mux.Router
}

// asUser stamps the authenticated user into the request context the way the
// auth middleware would.
func asUser(next http.Handler, userID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.InitDBAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := database.NewStore(db)
	sprintService := services.NewSprintService(store)
	require.NoError(t, sprintService.GenerateSprints())
	t.Cleanup(sprintService.Close)

	itemHandler := NewItemHandler(sprintService)
	sprintHandler := NewSprintHandler(sprintService)
	commentHandler := NewCommentHandler(store)

	r := mux.NewRouter()
	r.HandleFunc("/api/sprints/{id}", sprintHandler.GetSprint).Methods("GET")
	r.HandleFunc("/api/items", itemHandler.AddItem).Methods("POST")
	r.HandleFunc("/api/items/{id}", itemHandler.DeleteItem).Methods("DELETE")
	r.HandleFunc("/api/items/{itemId}/tasks/{taskId}", itemHandler.UpdateTask).Methods("PATCH")
	r.HandleFunc("/api/comments", commentHandler.AddComment).Methods("POST")
	r.HandleFunc("/api/comments", commentHandler.ListComments).Methods("GET")
	r.HandleFunc("/api/changes", commentHandler.ListChanges).Methods("GET")

	return &testEnv{
		store:         store,
		sprintService: sprintService,
		authService:   services.NewAuthService(store),
		router:        r,
	}
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	asUser(env.router, "user-1").ServeHTTP(rec, req)
	return rec
}

func TestAddItemEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do("POST", "/api/items", `{"title":"New work"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	sprint := env.sprintService.SprintByID("sprint-1")
	require.Len(t, sprint.Items, 1)
	assert.Equal(t, "New work", sprint.Items[0].Title)
	// Defaults applied at the edge.
	assert.Equal(t, database.StateToDo, sprint.Items[0].State)
	assert.Equal(t, database.PriorityNormal, sprint.Items[0].Priority)
	assert.Equal(t, "user-1", sprint.Items[0].CreatedBy)
}

func TestAddItemRejectsMissingTitle(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do("POST", "/api/items", `{"detail":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItemRejectsUnknownState(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do("POST", "/api/items", `{"title":"x","state":"Doing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteItemConfirmationFlow(t *testing.T) {
	env := setupTestEnv(t)
	require.Equal(t, http.StatusOK, env.do("POST", "/api/items", `{"title":"only item"}`).Code)

	sprint := env.sprintService.SprintByID("sprint-1")
	itemID := sprint.Items[0].ID

	// Purging the only item trips the destructive-change guard.
	rec := env.do("DELETE", "/api/items/"+itemID+"?mode=purge", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Status        string `json:"status"`
		SprintID      string `json:"sprintId"`
		PreviousCount int    `json:"previousCount"`
		NextCount     int    `json:"nextCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmation_required", resp.Status)
	assert.Equal(t, "sprint-1", resp.SprintID)
	assert.Equal(t, 1, resp.PreviousCount)
	assert.Equal(t, 0, resp.NextCount)

	// The item survived the declined delete.
	sprint = env.sprintService.SprintByID("sprint-1")
	require.Len(t, sprint.Items, 1)

	// Retrying with force goes through.
	rec = env.do("DELETE", "/api/items/"+itemID+"?mode=purge&force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sprint = env.sprintService.SprintByID("sprint-1")
	assert.Empty(t, sprint.Items)
}

func TestUpdateTaskRejectsInvalidState(t *testing.T) {
	env := setupTestEnv(t)
	require.Equal(t, http.StatusOK, env.do("POST", "/api/items", `{"title":"item"}`).Code)
	sprint := env.sprintService.SprintByID("sprint-1")
	itemID := sprint.Items[0].ID

	rec := env.do("PATCH", "/api/items/"+itemID+"/tasks/task-x", `{"state":"Doing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSprintNotFound(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do("GET", "/api/sprints/sprint-99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do("POST", "/api/comments", `{"associatedId":"item-1","associatedType":"item","description":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("POST", "/api/comments", `{"associatedId":"item-1","associatedType":"sprint","description":"bad type"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/api/comments?associatedId=item-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Comments []database.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Comments, 1)
	assert.Equal(t, "hello", resp.Comments[0].Description)
	assert.Equal(t, "user-1", resp.Comments[0].UserID)

	rec = env.do("GET", "/api/comments", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChangesEmptyTrail(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do("GET", "/api/changes?associatedId=item-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Changes []database.ChangeHistory `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Changes)
	assert.Empty(t, resp.Changes)
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestEnv(t)
	middleware := NewAuthMiddleware(env.authService)

	var gotUserID string
	probe := middleware.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = actingUser(r)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		probe.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sprints", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/sprints", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		probe.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/sprints", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		probe.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := env.authService.CreateJWT(&database.User{ID: "u1", Email: "ada@example.com"})
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/sprints", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		probe.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", gotUserID)
	})
}
