package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is the document gateway for all persisted data. Sprints are stored
// as whole JSON documents keyed by sprint id; comments and change history
// live in append-only tables queried by associated id.
//
// Every successful sprint save is pushed to registered watchers, which is
// how the rest of the system observes authoritative snapshots.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	watchers  map[string]map[int]func(Sprint)
	allWatch  map[int]func(Sprint)
	nextToken int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		watchers: make(map[string]map[int]func(Sprint)),
		allWatch: make(map[int]func(Sprint)),
	}
}

// SaveSprint upserts the sprint document and notifies watchers with the
// saved snapshot.
func (s *Store) SaveSprint(sprint *Sprint) error {
	data, err := json.Marshal(sprint)
	if err != nil {
		return fmt.Errorf("failed to marshal sprint: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sprints (id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			data = ?,
			updated_at = CURRENT_TIMESTAMP
	`, sprint.ID, string(data), string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert sprint: %w", err)
	}

	s.notify(sprint.Clone())
	return nil
}

// GetSprint returns the sprint document, or nil when it does not exist.
func (s *Store) GetSprint(sprintID string) (*Sprint, error) {
	row := s.db.QueryRow("SELECT data FROM sprints WHERE id = ?", sprintID)

	var dataStr string
	err := row.Scan(&dataStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sprint: %w", err)
	}

	return decodeSprint(dataStr)
}

// GetAllSprints returns every sprint document.
func (s *Store) GetAllSprints() ([]Sprint, error) {
	rows, err := s.db.Query("SELECT data FROM sprints")
	if err != nil {
		return nil, fmt.Errorf("failed to query sprints: %w", err)
	}
	defer rows.Close()

	var sprints []Sprint
	for rows.Next() {
		var dataStr string
		if err := rows.Scan(&dataStr); err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		sprint, err := decodeSprint(dataStr)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, *sprint)
	}
	return sprints, rows.Err()
}

func decodeSprint(dataStr string) (*Sprint, error) {
	var sprint Sprint
	if err := json.Unmarshal([]byte(dataStr), &sprint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sprint: %w", err)
	}
	sprint.Normalize()
	return &sprint, nil
}

// Watch registers a callback for saves of one sprint. The returned function
// cancels the subscription.
func (s *Store) Watch(sprintID string, fn func(Sprint)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.nextToken
	s.nextToken++
	if s.watchers[sprintID] == nil {
		s.watchers[sprintID] = make(map[int]func(Sprint))
	}
	s.watchers[sprintID][token] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[sprintID], token)
	}
}

// WatchAll registers a callback for saves of any sprint.
func (s *Store) WatchAll(fn func(Sprint)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.nextToken
	s.nextToken++
	s.allWatch[token] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.allWatch, token)
	}
}

func (s *Store) notify(sprint Sprint) {
	s.mu.Lock()
	var fns []func(Sprint)
	for _, fn := range s.watchers[sprint.ID] {
		fns = append(fns, fn)
	}
	for _, fn := range s.allWatch {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sprint)
	}
}

// SaveUser upserts a user record.
func (s *Store) SaveUser(user *User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, name, last_name, username, email, password)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_name = excluded.last_name,
			username = excluded.username,
			email = excluded.email,
			password = excluded.password
	`, user.ID, user.Name, user.LastName, user.Username, user.Email, user.Password)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

const userColumns = "id, name, last_name, username, email, password"

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.LastName, &u.Username, &u.Email, &u.Password)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by id, or nil when not found.
func (s *Store) GetUser(userID string) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	return scanUser(row)
}

// GetUserByUsername returns a user by exact username, or nil when not found.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// GetUserByEmail returns a user by email, or nil when not found.
func (s *Store) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

// GetAllUsers returns every user record.
func (s *Store) GetAllUsers() ([]User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.LastName, &u.Username, &u.Email, &u.Password); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AddComment appends a comment. Timestamps are stored in UTC.
func (s *Store) AddComment(comment *Comment) error {
	_, err := s.db.Exec(`
		INSERT INTO comments (id, associated_id, associated_type, user_id, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, comment.ID, comment.AssociatedID, string(comment.AssociatedType), comment.UserID,
		comment.Description, comment.CreatedAt.UTC(), comment.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// CommentsByAssociatedID returns comments for one item or task, oldest first.
func (s *Store) CommentsByAssociatedID(associatedID string) ([]Comment, error) {
	rows, err := s.db.Query(`
		SELECT id, associated_id, associated_type, user_id, description, created_at, updated_at
		FROM comments WHERE associated_id = ? ORDER BY created_at ASC
	`, associatedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		var assocType string
		if err := rows.Scan(&c.ID, &c.AssociatedID, &assocType, &c.UserID, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.AssociatedType = AssociatedType(assocType)
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// UpdateComment rewrites a comment's text and bumps its updated timestamp.
func (s *Store) UpdateComment(commentID, description string, updatedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE comments SET description = ?, updated_at = ? WHERE id = ?
	`, description, updatedAt.UTC(), commentID)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return nil
}

// DeleteComment removes a comment.
func (s *Store) DeleteComment(commentID string) error {
	_, err := s.db.Exec("DELETE FROM comments WHERE id = ?", commentID)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// AddChange appends a change-history entry. The history is append-only:
// there is deliberately no update or delete counterpart.
func (s *Store) AddChange(change *ChangeHistory) error {
	_, err := s.db.Exec(`
		INSERT INTO changes (id, associated_id, associated_type, field, old_value, new_value, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, change.ID, change.AssociatedID, string(change.AssociatedType), change.Field,
		change.OldValue, change.NewValue, change.UserID, change.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert change: %w", err)
	}
	return nil
}

// ChangesByAssociatedID returns the audit trail for one item or task,
// oldest first.
func (s *Store) ChangesByAssociatedID(associatedID string) ([]ChangeHistory, error) {
	rows, err := s.db.Query(`
		SELECT id, associated_id, associated_type, field, old_value, new_value, user_id, created_at
		FROM changes WHERE associated_id = ? ORDER BY created_at ASC
	`, associatedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []ChangeHistory
	for rows.Next() {
		var c ChangeHistory
		var assocType string
		if err := rows.Scan(&c.ID, &c.AssociatedID, &assocType, &c.Field, &c.OldValue, &c.NewValue, &c.UserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.AssociatedType = AssociatedType(assocType)
		c.CreatedAt = c.CreatedAt.UTC()
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *Store) allComments() ([]Comment, error) {
	rows, err := s.db.Query(`
		SELECT id, associated_id, associated_type, user_id, description, created_at, updated_at
		FROM comments ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		var assocType string
		if err := rows.Scan(&c.ID, &c.AssociatedID, &assocType, &c.UserID, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.AssociatedType = AssociatedType(assocType)
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) allChanges() ([]ChangeHistory, error) {
	rows, err := s.db.Query(`
		SELECT id, associated_id, associated_type, field, old_value, new_value, user_id, created_at
		FROM changes ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []ChangeHistory
	for rows.Next() {
		var c ChangeHistory
		var assocType string
		if err := rows.Scan(&c.ID, &c.AssociatedID, &assocType, &c.Field, &c.OldValue, &c.NewValue, &c.UserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.AssociatedType = AssociatedType(assocType)
		c.CreatedAt = c.CreatedAt.UTC()
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// ExportBundle is the full-database export format.
type ExportBundle struct {
	Sprints    []Sprint        `json:"sprints"`
	Users      []User          `json:"users"`
	Comments   []Comment       `json:"comments"`
	Changes    []ChangeHistory `json:"changes"`
	ExportedAt time.Time       `json:"exportedAt"`
}

// ExportAll collects every sprint, user, comment and change record.
func (s *Store) ExportAll() (*ExportBundle, error) {
	sprints, err := s.GetAllSprints()
	if err != nil {
		return nil, err
	}
	users, err := s.GetAllUsers()
	if err != nil {
		return nil, err
	}
	comments, err := s.allComments()
	if err != nil {
		return nil, err
	}
	changes, err := s.allChanges()
	if err != nil {
		return nil, err
	}

	return &ExportBundle{
		Sprints:    sprints,
		Users:      users,
		Comments:   comments,
		Changes:    changes,
		ExportedAt: time.Now().UTC(),
	}, nil
}
