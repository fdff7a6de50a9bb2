package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := InitDBAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func TestSaveAndGetSprint(t *testing.T) {
	store := setupTestStore(t)

	sprint := Sprint{
		ID:        "sprint-1",
		Title:     "Sprint 1",
		StartDate: time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC),
		Items: []Item{
			{ID: "item-1", Title: "First item", State: StateToDo, Priority: PriorityNormal, Order: 1},
		},
	}
	sprint.Normalize()
	require.NoError(t, store.SaveSprint(&sprint))

	got, err := store.GetSprint("sprint-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sprint 1", got.Title)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "First item", got.Items[0].Title)
	// Loaded documents come back normalized.
	assert.Len(t, got.WorkingDays, 10)
}

func TestGetSprintMissingReturnsNil(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetSprint("sprint-99")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveSprintUpserts(t *testing.T) {
	store := setupTestStore(t)

	sprint := Sprint{ID: "sprint-1", Title: "before"}
	sprint.Normalize()
	require.NoError(t, store.SaveSprint(&sprint))

	sprint.Title = "after"
	require.NoError(t, store.SaveSprint(&sprint))

	got, err := store.GetSprint("sprint-1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)

	all, err := store.GetAllSprints()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWatchReceivesSavedSnapshots(t *testing.T) {
	store := setupTestStore(t)

	var seen []string
	cancel := store.Watch("sprint-1", func(s Sprint) {
		seen = append(seen, s.Title)
	})

	one := Sprint{ID: "sprint-1", Title: "one"}
	one.Normalize()
	require.NoError(t, store.SaveSprint(&one))

	// Saves of other sprints do not reach this watcher.
	other := Sprint{ID: "sprint-2", Title: "other"}
	other.Normalize()
	require.NoError(t, store.SaveSprint(&other))

	cancel()
	one.Title = "after cancel"
	require.NoError(t, store.SaveSprint(&one))

	assert.Equal(t, []string{"one"}, seen)
}

func TestWatchAllReceivesEverySave(t *testing.T) {
	store := setupTestStore(t)

	var seen []string
	cancel := store.WatchAll(func(s Sprint) {
		seen = append(seen, s.ID)
	})
	defer cancel()

	for _, id := range []string{"sprint-1", "sprint-2"} {
		s := Sprint{ID: id}
		s.Normalize()
		require.NoError(t, store.SaveSprint(&s))
	}

	assert.Equal(t, []string{"sprint-1", "sprint-2"}, seen)
}

func TestUserRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	user := User{ID: "u1", Name: "Ada", LastName: "Lovelace", Username: "ada", Email: "ada@example.com"}
	require.NoError(t, store.SaveUser(&user))

	byID, err := store.GetUser("u1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "ada", byID.Username)

	byUsername, err := store.GetUserByUsername("ada")
	require.NoError(t, err)
	require.NotNil(t, byUsername)
	assert.Equal(t, "u1", byUsername.ID)

	byEmail, err := store.GetUserByEmail("ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u1", byEmail.ID)

	missing, err := store.GetUser("u2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCommentLifecycle(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	first := Comment{
		ID: "c1", AssociatedID: "item-1", AssociatedType: AssociatedItem,
		UserID: "u1", Description: "first", CreatedAt: now, UpdatedAt: now,
	}
	second := Comment{
		ID: "c2", AssociatedID: "item-1", AssociatedType: AssociatedItem,
		UserID: "u1", Description: "second", CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute),
	}
	require.NoError(t, store.AddComment(&first))
	require.NoError(t, store.AddComment(&second))

	comments, err := store.CommentsByAssociatedID("item-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Description)
	assert.Equal(t, "second", comments[1].Description)

	require.NoError(t, store.UpdateComment("c1", "edited", now.Add(time.Hour)))
	comments, err = store.CommentsByAssociatedID("item-1")
	require.NoError(t, err)
	assert.Equal(t, "edited", comments[0].Description)

	require.NoError(t, store.DeleteComment("c1"))
	comments, err = store.CommentsByAssociatedID("item-1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c2", comments[0].ID)
}

func TestChangesAreAppendOnlyAndOrdered(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i, field := range []string{"state", "priority", "title"} {
		change := ChangeHistory{
			ID:             "ch-" + field,
			AssociatedID:   "task-1",
			AssociatedType: AssociatedTask,
			Field:          field,
			OldValue:       "old",
			NewValue:       "new",
			UserID:         "u1",
			CreatedAt:      now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.AddChange(&change))
	}

	changes, err := store.ChangesByAssociatedID("task-1")
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, "state", changes[0].Field)
	assert.Equal(t, "priority", changes[1].Field)
	assert.Equal(t, "title", changes[2].Field)
}

func TestExportAll(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	sprint := Sprint{ID: "sprint-1", Title: "Sprint 1"}
	sprint.Normalize()
	require.NoError(t, store.SaveSprint(&sprint))
	require.NoError(t, store.SaveUser(&User{ID: "u1", Username: "ada", Email: "ada@example.com"}))
	require.NoError(t, store.AddComment(&Comment{
		ID: "c1", AssociatedID: "item-1", AssociatedType: AssociatedItem,
		UserID: "u1", Description: "note", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.AddChange(&ChangeHistory{
		ID: "ch1", AssociatedID: "item-1", AssociatedType: AssociatedItem,
		Field: "state", OldValue: "To Do", NewValue: "Done", UserID: "u1", CreatedAt: now,
	}))

	bundle, err := store.ExportAll()
	require.NoError(t, err)
	assert.Len(t, bundle.Sprints, 1)
	assert.Len(t, bundle.Users, 1)
	assert.Len(t, bundle.Comments, 1)
	assert.Len(t, bundle.Changes, 1)
	assert.False(t, bundle.ExportedAt.IsZero())
}
