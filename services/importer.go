package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/google/uuid"
)

// ImportResult is the outcome of sanitizing an imported item batch.
type ImportResult struct {
	Items      []database.Item `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalTasks int             `json:"totalTasks"`
}

// rawRecord is an untyped imported item or task. Unknown fields are
// ignored; missing fields get defaults.
type rawRecord map[string]any

// SanitizeImportedItems validates and converts a JSON array of item-shaped
// records into domain items. Titles are required (the error names the
// 1-based record index and field); state and priority are coerced to valid
// enum members; efforts default to zero; assignee references are resolved
// against the known users; ids are always minted fresh. Any validation
// failure aborts the whole batch. After sanitizing, items and their tasks
// are renumbered densely 1-based.
func SanitizeImportedItems(data []byte, users []database.User) (*ImportResult, error) {
	var records []rawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("import file must contain a JSON array of items: %w", err)
	}

	items := make([]database.Item, 0, len(records))
	totalTasks := 0
	for i, record := range records {
		item, err := sanitizeItem(record, i, users)
		if err != nil {
			return nil, err
		}
		totalTasks += len(item.Tasks)
		items = append(items, *item)
	}

	for i := range items {
		items[i].Order = i + 1
		for j := range items[i].Tasks {
			items[i].Tasks[j].Order = j + 1
		}
	}

	return &ImportResult{
		Items:      items,
		TotalItems: len(items),
		TotalTasks: totalTasks,
	}, nil
}

func sanitizeItem(record rawRecord, index int, users []database.User) (*database.Item, error) {
	title, ok := record["title"].(string)
	if !ok || title == "" {
		return nil, fmt.Errorf("item %d: field 'title' is required and must be a string", index+1)
	}

	now := time.Now().UTC()
	item := &database.Item{
		ID:              "item-" + uuid.NewString(),
		Title:           title,
		Detail:          stringField(record, "detail"),
		Priority:        coercePriority(record["priority"]),
		State:           coerceState(record["state"]),
		EstimatedEffort: numberField(record, "estimatedEffort"),
		ActualEffort:    numberField(record, "actualEffort"),
		AssignedUser:    ResolveAssignee(stringField(record, "assignedUser"), users),
		Tasks:           []database.Task{},
		Order:           index + 1,
		CreatedAt:       now,
		Project:         stringField(record, "project"),
	}

	rawTasks, _ := record["tasks"].([]any)
	for taskIndex, rawTask := range rawTasks {
		taskRecord, ok := toRecord(rawTask)
		if !ok {
			return nil, fmt.Errorf("item %d, task %d: task must be an object", index+1, taskIndex+1)
		}
		taskTitle, ok := taskRecord["title"].(string)
		if !ok || taskTitle == "" {
			return nil, fmt.Errorf("item %d, task %d: field 'title' is required and must be a string", index+1, taskIndex+1)
		}
		item.Tasks = append(item.Tasks, database.Task{
			ID:              "task-" + uuid.NewString(),
			Title:           taskTitle,
			Detail:          stringField(taskRecord, "detail"),
			Priority:        coercePriority(taskRecord["priority"]),
			State:           coerceState(taskRecord["state"]),
			EstimatedEffort: numberField(taskRecord, "estimatedEffort"),
			ActualEffort:    numberField(taskRecord, "actualEffort"),
			AssignedUser:    ResolveAssignee(stringField(taskRecord, "assignedUser"), users),
			Order:           taskIndex + 1,
			CreatedAt:       now,
		})
	}

	return item, nil
}

func toRecord(v any) (rawRecord, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return rawRecord(m), true
}

func stringField(record rawRecord, key string) string {
	s, _ := record[key].(string)
	return s
}

func numberField(record rawRecord, key string) float64 {
	n, _ := record[key].(float64)
	return n
}

func coerceState(v any) database.State {
	if s, ok := v.(string); ok {
		if state := database.State(s); state.Valid() {
			return state
		}
	}
	return database.StateToDo
}

func coercePriority(v any) database.Priority {
	if s, ok := v.(string); ok {
		if priority := database.Priority(s); priority.Valid() {
			return priority
		}
	}
	return database.PriorityNormal
}

// ResolveAssignee maps a free-text assignee reference to a known user id.
// Matching is case-insensitive on substrings, trying username first, then
// email, then "first last" full name. No match yields nil.
func ResolveAssignee(ref string, users []database.User) *string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return nil
	}

	match := func(candidate func(*database.User) string) *string {
		for i := range users {
			value := strings.ToLower(candidate(&users[i]))
			if value != "" && strings.Contains(value, ref) {
				return &users[i].ID
			}
		}
		return nil
	}

	if id := match(func(u *database.User) string { return u.Username }); id != nil {
		return id
	}
	if id := match(func(u *database.User) string { return u.Email }); id != nil {
		return id
	}
	return match(func(u *database.User) string { return u.FullName() })
}
