package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is the workflow state of an item or task.
type State string

const (
	StateToDo         State = "To Do"
	StateInProgress   State = "In Progress"
	StateWaiting      State = "Waiting"
	StateReadyForTest State = "Ready For Test"
	StateDone         State = "Done"
)

// States lists every valid state in display order.
var States = []State{StateToDo, StateInProgress, StateWaiting, StateReadyForTest, StateDone}

func (s State) Valid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// Priority is the urgency of an item or task.
type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var Priorities = []Priority{PriorityNormal, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// RankPolicy maps a state to its sort rank (lower sorts first). Two policies
// are in active use: the task-sort action ranks In Progress above Waiting,
// while the item split ranks Waiting above In Progress. Keep both until
// product decides which one wins.
type RankPolicy map[State]int

var (
	// RankInProgressFirst: Done, Ready For Test, In Progress, To Do, Waiting.
	RankInProgressFirst = RankPolicy{
		StateDone:         0,
		StateReadyForTest: 1,
		StateInProgress:   2,
		StateToDo:         3,
		StateWaiting:      4,
	}

	// RankWaitingFirst: Done, Ready For Test, Waiting, In Progress, To Do.
	RankWaitingFirst = RankPolicy{
		StateDone:         0,
		StateReadyForTest: 1,
		StateWaiting:      2,
		StateInProgress:   3,
		StateToDo:         4,
	}
)

// priorityRank is shared by both policies: High first, Normal last.
var priorityRank = map[Priority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityNormal: 2,
}

// workingDaySlots is the number of weekday slots in a two-week sprint.
const workingDaySlots = 10

// SprintDuration is the calendar length of a sprint.
const SprintDuration = 14 * 24 * time.Hour

// Task is the smallest trackable unit of work. A task always belongs to
// exactly one item.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Detail          string     `json:"detail"`
	Priority        Priority   `json:"priority"`
	State           State      `json:"state"`
	EstimatedEffort float64    `json:"estimatedEffort"`
	ActualEffort    float64    `json:"actualEffort"`
	AssignedUser    *string    `json:"assignedUser"`
	Order           int        `json:"order"`
	CreatedAt       time.Time  `json:"createdAt"`
	CreatedBy       string     `json:"createdBy"`
	DeletedAt       *time.Time `json:"deletedAt"`
	Project         string     `json:"project,omitempty"`
}

// Active reports whether the task has not been soft-deleted.
func (t *Task) Active() bool { return t.DeletedAt == nil }

// Item is a unit of work within a sprint, optionally decomposed into tasks.
type Item struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Detail          string     `json:"detail"`
	Priority        Priority   `json:"priority"`
	State           State      `json:"state"`
	EstimatedEffort float64    `json:"estimatedEffort"`
	ActualEffort    float64    `json:"actualEffort"`
	AssignedUser    *string    `json:"assignedUser"`
	Tasks           []Task     `json:"tasks"`
	Order           int        `json:"order"`
	CreatedAt       time.Time  `json:"createdAt"`
	CreatedBy       string     `json:"createdBy"`
	DeletedAt       *time.Time `json:"deletedAt"`
	Project         string     `json:"project,omitempty"`
}

// Active reports whether the item has not been soft-deleted.
func (i *Item) Active() bool { return i.DeletedAt == nil }

// ActiveTasks returns pointers to the item's non-deleted tasks.
func (i *Item) ActiveTasks() []*Task {
	var active []*Task
	for idx := range i.Tasks {
		if i.Tasks[idx].Active() {
			active = append(active, &i.Tasks[idx])
		}
	}
	return active
}

// RecalculateEffort sets the item's estimated and actual effort to the sum
// over its active tasks. Items without tasks keep their own values.
func (i *Item) RecalculateEffort() {
	if len(i.Tasks) == 0 {
		return
	}
	var estimated, actual float64
	for idx := range i.Tasks {
		if !i.Tasks[idx].Active() {
			continue
		}
		estimated += i.Tasks[idx].EstimatedEffort
		actual += i.Tasks[idx].ActualEffort
	}
	i.EstimatedEffort = estimated
	i.ActualEffort = actual
}

// Sprint is a fixed two-week iteration window containing items. Sprints are
// persisted as one JSON document per sprint, keyed by ID.
type Sprint struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	StartDate       time.Time         `json:"startDate"`
	EndDate         time.Time         `json:"endDate"`
	WorkingDays     []bool            `json:"workingDays"`
	UserWorkingDays map[string][]bool `json:"userWorkingDays"`
	Items           []Item            `json:"items"`

	// LegacyWorkingDayCount carries the pre-vector scalar field from old
	// documents; Normalize migrates it into WorkingDays.
	LegacyWorkingDayCount *int `json:"workingDayCount,omitempty"`
}

// ActiveItems returns pointers to the sprint's non-deleted items.
func (s *Sprint) ActiveItems() []*Item {
	var active []*Item
	for idx := range s.Items {
		if s.Items[idx].Active() {
			active = append(active, &s.Items[idx])
		}
	}
	return active
}

// Number extracts the numeric suffix of the sprint id ("sprint-12" -> 12).
// Ids without a numeric suffix sort as zero.
func (s *Sprint) Number() int {
	idx := strings.LastIndex(s.ID, "-")
	if idx == -1 {
		return 0
	}
	n, err := strconv.Atoi(s.ID[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// Normalize backfills fields that older or externally-written documents may
// be missing, so the rest of the code can rely on their shape:
//   - the working-day vector has exactly ten slots (pad with true, truncate
//     extras), migrating the legacy scalar count when present
//   - the per-user working-day map is non-nil
//   - items and tasks have a non-nil task list and UTC timestamps
func (s *Sprint) Normalize() {
	if s.LegacyWorkingDayCount != nil && s.WorkingDays == nil {
		count := *s.LegacyWorkingDayCount
		s.WorkingDays = make([]bool, workingDaySlots)
		for i := range s.WorkingDays {
			s.WorkingDays[i] = i < count
		}
	}
	s.LegacyWorkingDayCount = nil

	if s.WorkingDays == nil {
		s.WorkingDays = FullWorkingDays()
	} else if len(s.WorkingDays) != workingDaySlots {
		normalized := make([]bool, workingDaySlots)
		for i := range normalized {
			if i < len(s.WorkingDays) {
				normalized[i] = s.WorkingDays[i]
			} else {
				normalized[i] = true
			}
		}
		s.WorkingDays = normalized
	}

	if s.UserWorkingDays == nil {
		s.UserWorkingDays = make(map[string][]bool)
	}

	s.StartDate = s.StartDate.UTC()
	s.EndDate = s.EndDate.UTC()

	if s.Items == nil {
		s.Items = []Item{}
	}
	for i := range s.Items {
		item := &s.Items[i]
		if item.Tasks == nil {
			item.Tasks = []Task{}
		}
		item.CreatedAt = item.CreatedAt.UTC()
		if item.DeletedAt != nil {
			t := item.DeletedAt.UTC()
			item.DeletedAt = &t
		}
		for j := range item.Tasks {
			task := &item.Tasks[j]
			task.CreatedAt = task.CreatedAt.UTC()
			if task.DeletedAt != nil {
				t := task.DeletedAt.UTC()
				task.DeletedAt = &t
			}
		}
	}
}

// FullWorkingDays returns a vector with all ten sprint days enabled.
func FullWorkingDays() []bool {
	days := make([]bool, workingDaySlots)
	for i := range days {
		days[i] = true
	}
	return days
}

// Clone returns a deep copy of the sprint, used for rollback snapshots.
func (s *Sprint) Clone() Sprint {
	out := *s
	out.WorkingDays = append([]bool(nil), s.WorkingDays...)
	out.UserWorkingDays = make(map[string][]bool, len(s.UserWorkingDays))
	for k, v := range s.UserWorkingDays {
		out.UserWorkingDays[k] = append([]bool(nil), v...)
	}
	out.Items = make([]Item, len(s.Items))
	for i := range s.Items {
		out.Items[i] = s.Items[i]
		out.Items[i].Tasks = append([]Task(nil), s.Items[i].Tasks...)
	}
	return out
}

// User is a team member account.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// FullName returns "first last" for assignee matching.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

// AssociatedType says whether a comment or change refers to an item or task.
type AssociatedType string

const (
	AssociatedItem AssociatedType = "item"
	AssociatedTask AssociatedType = "task"
)

// Comment is a free-text note attached to an item or task.
type Comment struct {
	ID             string         `json:"id"`
	AssociatedID   string         `json:"associatedId"`
	AssociatedType AssociatedType `json:"associatedType"`
	UserID         string         `json:"userId"`
	Description    string         `json:"description"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ChangeHistory is an append-only audit record of a single field change.
// Entries are never mutated or deleted.
type ChangeHistory struct {
	ID             string         `json:"id"`
	AssociatedID   string         `json:"associatedId"`
	AssociatedType AssociatedType `json:"associatedType"`
	Field          string         `json:"field"`
	OldValue       string         `json:"oldValue"`
	NewValue       string         `json:"newValue"`
	UserID         string         `json:"userId"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ItemUpdate is a partial update of an item. Only non-nil fields are
// applied; each applied field produces its own change-history entry.
type ItemUpdate struct {
	Title           *string   `json:"title"`
	Detail          *string   `json:"detail"`
	State           *State    `json:"state"`
	Priority        *Priority `json:"priority"`
	EstimatedEffort *float64  `json:"estimatedEffort"`
	ActualEffort    *float64  `json:"actualEffort"`
	AssignedUser    *string   `json:"assignedUser"`
	Project         *string   `json:"project"`
}

// Validate rejects updates that would write an unknown enum value.
func (u *ItemUpdate) Validate() error {
	if u.State != nil && !u.State.Valid() {
		return fmt.Errorf("invalid state: %q", *u.State)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return fmt.Errorf("invalid priority: %q", *u.Priority)
	}
	return nil
}

// TaskUpdate is a partial update of a task, same rules as ItemUpdate.
type TaskUpdate struct {
	Title           *string   `json:"title"`
	Detail          *string   `json:"detail"`
	State           *State    `json:"state"`
	Priority        *Priority `json:"priority"`
	EstimatedEffort *float64  `json:"estimatedEffort"`
	ActualEffort    *float64  `json:"actualEffort"`
	AssignedUser    *string   `json:"assignedUser"`
	Project         *string   `json:"project"`
}

func (u *TaskUpdate) Validate() error {
	if u.State != nil && !u.State.Valid() {
		return fmt.Errorf("invalid state: %q", *u.State)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return fmt.Errorf("invalid priority: %q", *u.Priority)
	}
	return nil
}

// DeleteMode selects between soft deletion and a physical purge. Soft
// deletion is the normal path; purge exists for the legacy hard-delete flow.
type DeleteMode int

const (
	MarkRemoved DeleteMode = iota
	Purge
)
