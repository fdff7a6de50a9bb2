package services

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/CrowderSoup/sprint-app/database"
	"github.com/google/uuid"
)

// sprintEpoch is the pinned start date of sprint-1. Date recalculation
// cascades every later sprint from this point.
var sprintEpoch = time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC)

// ConfirmationRequiredError is returned when a save would drop the item
// count sharply and the caller did not force the operation. The in-memory
// mutation has already been rolled back when this error is returned.
type ConfirmationRequiredError struct {
	SprintID      string
	SprintTitle   string
	PreviousCount int
	NextCount     int
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("sprint %q had %d items and would be saved with %d; confirmation required",
		e.SprintTitle, e.PreviousCount, e.NextCount)
}

// SprintService is the single in-memory source of truth for all sprints.
// Mutations apply to local state first, run the destructive-change guard,
// persist through the store, and reconcile with snapshots the store pushes
// back. A mutex serializes mutations; persistence happens outside the lock
// on a copy of the sprint.
type SprintService struct {
	store *database.Store

	mu              sync.Mutex
	sprints         []database.Sprint
	currentSprintID string

	// backupCounts caches the last known item count per sprint. The guard
	// compares against it before every save; it is refreshed after each
	// successful guarded save and on every incoming snapshot.
	backupCounts map[string]int

	cancels []func()
}

func NewSprintService(store *database.Store) *SprintService {
	return &SprintService{
		store:        store,
		backupCounts: make(map[string]int),
	}
}

// Close cancels the store subscriptions.
func (s *SprintService) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}

func newItemID() string { return "item-" + uuid.NewString() }
func newTaskID() string { return "task-" + uuid.NewString() }

// GenerateSprints loads all sprints, bootstrapping sprint-1 when the store
// is empty, selects the sprint covering today as current, and subscribes to
// snapshot pushes for every sprint.
func (s *SprintService) GenerateSprints() error {
	sprints, err := s.store.GetAllSprints()
	if err != nil {
		return err
	}

	if len(sprints) == 0 {
		first := database.Sprint{
			ID:              "sprint-1",
			Title:           "Sprint 1",
			StartDate:       sprintEpoch,
			EndDate:         sprintEpoch.Add(database.SprintDuration),
			WorkingDays:     database.FullWorkingDays(),
			UserWorkingDays: make(map[string][]bool),
			Items:           []database.Item{},
		}
		if err := s.store.SaveSprint(&first); err != nil {
			return err
		}
		sprints = append(sprints, first)
	}

	sort.Slice(sprints, func(a, b int) bool {
		return sprints[a].Number() < sprints[b].Number()
	})

	now := time.Now().UTC()
	currentID := sprints[0].ID
	for i := range sprints {
		if !now.Before(sprints[i].StartDate) && !now.After(sprints[i].EndDate) {
			currentID = sprints[i].ID
			break
		}
	}

	s.mu.Lock()
	s.sprints = sprints
	s.currentSprintID = currentID
	for i := range sprints {
		s.backupCounts[sprints[i].ID] = len(sprints[i].Items)
	}
	s.mu.Unlock()

	for i := range sprints {
		s.watchSprint(sprints[i].ID)
	}
	return nil
}

func (s *SprintService) watchSprint(sprintID string) {
	cancel := s.store.Watch(sprintID, s.ApplySnapshot)
	s.cancels = append(s.cancels, cancel)
}

// ApplySnapshot merges an authoritative sprint document pushed by the store
// into memory. The entry is replaced wholesale after normalization: last
// write wins, local edits not yet persisted are overwritten.
func (s *SprintService) ApplySnapshot(sprint database.Sprint) {
	sprint.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sprints {
		if s.sprints[i].ID == sprint.ID {
			s.sprints[i] = sprint
			s.backupCounts[sprint.ID] = len(sprint.Items)
			return
		}
	}
}

// Sprints returns a copy of every sprint, ordered as held in memory.
func (s *SprintService) Sprints() []database.Sprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]database.Sprint, len(s.sprints))
	for i := range s.sprints {
		out[i] = s.sprints[i].Clone()
	}
	return out
}

// SprintByID returns a copy of one sprint, or nil when unknown.
func (s *SprintService) SprintByID(sprintID string) *database.Sprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sprint := s.findLocked(sprintID); sprint != nil {
		clone := sprint.Clone()
		return &clone
	}
	return nil
}

// CurrentSprintID returns the id of the selected sprint.
func (s *SprintService) CurrentSprintID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSprintID
}

// SetCurrentSprint selects the sprint mutations operate on.
func (s *SprintService) SetCurrentSprint(sprintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(sprintID) == nil {
		return fmt.Errorf("sprint not found: %s", sprintID)
	}
	s.currentSprintID = sprintID
	return nil
}

func (s *SprintService) findLocked(sprintID string) *database.Sprint {
	for i := range s.sprints {
		if s.sprints[i].ID == sprintID {
			return &s.sprints[i]
		}
	}
	return nil
}

func (s *SprintService) currentLocked() *database.Sprint {
	return s.findLocked(s.currentSprintID)
}

func findItem(sprint *database.Sprint, itemID string) *database.Item {
	for i := range sprint.Items {
		if sprint.Items[i].ID == itemID {
			return &sprint.Items[i]
		}
	}
	return nil
}

func findTask(item *database.Item, taskID string) *database.Task {
	for i := range item.Tasks {
		if item.Tasks[i].ID == taskID {
			return &item.Tasks[i]
		}
	}
	return nil
}

// guardLocked runs the destructive-change check for a mutated sprint. On a
// pass it refreshes the backup count and returns a copy to persist; on a
// trip without force it restores the pre-mutation snapshot and reports the
// counts. Must be called with the service lock held.
func (s *SprintService) guardLocked(sprint *database.Sprint, snapshot database.Sprint, force bool) (database.Sprint, error) {
	prev, tracked := s.backupCounts[sprint.ID]
	next := len(sprint.Items)

	if tracked && !force {
		dropToZero := prev >= 1 && next == 0
		sharpDrop := prev-next >= 2
		if dropToZero || sharpDrop {
			log.Printf("Save of sprint %s blocked: item count %d -> %d", sprint.ID, prev, next)
			err := &ConfirmationRequiredError{
				SprintID:      sprint.ID,
				SprintTitle:   sprint.Title,
				PreviousCount: prev,
				NextCount:     next,
			}
			*sprint = snapshot
			return database.Sprint{}, err
		}
	}

	s.backupCounts[sprint.ID] = next
	return sprint.Clone(), nil
}

func (s *SprintService) persist(sprint database.Sprint) error {
	if err := s.store.SaveSprint(&sprint); err != nil {
		log.Printf("Error saving sprint %s: %v", sprint.ID, err)
		return err
	}
	return nil
}

func (s *SprintService) recordChanges(changes []database.ChangeHistory) {
	for i := range changes {
		if err := s.store.AddChange(&changes[i]); err != nil {
			log.Printf("Error saving change history: %v", err)
		}
	}
}

func newChange(associatedID string, typ database.AssociatedType, field, oldValue, newValue, actorID string) database.ChangeHistory {
	return database.ChangeHistory{
		ID:             uuid.NewString(),
		AssociatedID:   associatedID,
		AssociatedType: typ,
		Field:          field,
		OldValue:       oldValue,
		NewValue:       newValue,
		UserID:         actorID,
		CreatedAt:      time.Now().UTC(),
	}
}

func formatEffort(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func assignedValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// AddItem appends an item to the current sprint's list. Missing ids and
// metadata are filled in; order defaults to the end of the active list.
func (s *SprintService) AddItem(item database.Item, actorID string, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		log.Printf("AddItem: no current sprint")
		return nil
	}
	snapshot := sprint.Clone()

	if item.ID == "" {
		item.ID = newItemID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.CreatedBy == "" {
		item.CreatedBy = actorID
	}
	if item.Tasks == nil {
		item.Tasks = []database.Task{}
	}
	if item.Order == 0 {
		item.Order = maxActiveOrder(sprint.Items) + 1
	}
	sprint.Items = append(sprint.Items, item)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

func maxActiveOrder(items []database.Item) int {
	max := 0
	for i := range items {
		if items[i].Active() && items[i].Order > max {
			max = items[i].Order
		}
	}
	return max
}

// UpdateItem merges the non-nil fields of the update into the item and
// records one change-history entry per field touched. A missing item id is
// a logged no-op, never an error.
func (s *SprintService) UpdateItem(itemID string, upd database.ItemUpdate, actorID string, force bool) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("UpdateItem: item not found: %s", itemID)
		return nil
	}
	snapshot := sprint.Clone()

	changes := applyItemUpdate(item, &upd, actorID)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.persist(out); err != nil {
		return err
	}
	s.recordChanges(changes)
	return nil
}

func applyItemUpdate(item *database.Item, upd *database.ItemUpdate, actorID string) []database.ChangeHistory {
	var changes []database.ChangeHistory
	record := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			changes = append(changes, newChange(item.ID, database.AssociatedItem, field, oldValue, newValue, actorID))
		}
	}

	if upd.Title != nil {
		record("title", item.Title, *upd.Title)
		item.Title = *upd.Title
	}
	if upd.Detail != nil {
		record("detail", item.Detail, *upd.Detail)
		item.Detail = *upd.Detail
	}
	if upd.State != nil {
		record("state", string(item.State), string(*upd.State))
		item.State = *upd.State
	}
	if upd.Priority != nil {
		record("priority", string(item.Priority), string(*upd.Priority))
		item.Priority = *upd.Priority
	}
	if upd.EstimatedEffort != nil {
		record("estimatedEffort", formatEffort(item.EstimatedEffort), formatEffort(*upd.EstimatedEffort))
		item.EstimatedEffort = *upd.EstimatedEffort
	}
	if upd.ActualEffort != nil {
		record("actualEffort", formatEffort(item.ActualEffort), formatEffort(*upd.ActualEffort))
		item.ActualEffort = *upd.ActualEffort
	}
	if upd.AssignedUser != nil {
		record("assignedUser", assignedValue(item.AssignedUser), *upd.AssignedUser)
		v := *upd.AssignedUser
		item.AssignedUser = &v
	}
	if upd.Project != nil {
		record("project", item.Project, *upd.Project)
		item.Project = *upd.Project
	}
	return changes
}

// UpdateTask merges the non-nil fields of the update into the task, then
// reconciles the parent item: effort totals are recomputed over active
// tasks, an all-Done task list forces the item Done, and a task entering
// In Progress pulls a To Do or Done item into In Progress. A task leaving
// To Do is auto-assigned to the acting user (and so is the parent item)
// when unassigned. Missing ids are logged no-ops.
func (s *SprintService) UpdateTask(taskID, itemID string, upd database.TaskUpdate, actorID string, force bool) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("UpdateTask: item not found: %s", itemID)
		return nil
	}
	task := findTask(item, taskID)
	if task == nil {
		s.mu.Unlock()
		log.Printf("UpdateTask: task not found: %s", taskID)
		return nil
	}
	snapshot := sprint.Clone()

	oldState := task.State
	changes := applyTaskUpdate(task, &upd, actorID)

	// Leaving To Do assigns the work to whoever acted on it.
	if upd.State != nil && oldState == database.StateToDo && *upd.State != database.StateToDo && actorID != "" {
		if assignedValue(task.AssignedUser) == "" {
			changes = append(changes, newChange(task.ID, database.AssociatedTask, "assignedUser", "", actorID, actorID))
			actor := actorID
			task.AssignedUser = &actor
		}
		if assignedValue(item.AssignedUser) == "" {
			changes = append(changes, newChange(item.ID, database.AssociatedItem, "assignedUser", "", actorID, actorID))
			actor := actorID
			item.AssignedUser = &actor
		}
	}

	item.RecalculateEffort()

	active := item.ActiveTasks()
	if len(active) > 0 {
		allDone := true
		for _, t := range active {
			if t.State != database.StateDone {
				allDone = false
				break
			}
		}
		if allDone {
			item.State = database.StateDone
		}
	}

	if upd.State != nil && *upd.State == database.StateInProgress &&
		(item.State == database.StateToDo || item.State == database.StateDone) {
		item.State = database.StateInProgress
	}

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.persist(out); err != nil {
		return err
	}
	s.recordChanges(changes)
	return nil
}

func applyTaskUpdate(task *database.Task, upd *database.TaskUpdate, actorID string) []database.ChangeHistory {
	var changes []database.ChangeHistory
	record := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			changes = append(changes, newChange(task.ID, database.AssociatedTask, field, oldValue, newValue, actorID))
		}
	}

	if upd.Title != nil {
		record("title", task.Title, *upd.Title)
		task.Title = *upd.Title
	}
	if upd.Detail != nil {
		record("detail", task.Detail, *upd.Detail)
		task.Detail = *upd.Detail
	}
	if upd.State != nil {
		record("state", string(task.State), string(*upd.State))
		task.State = *upd.State
	}
	if upd.Priority != nil {
		record("priority", string(task.Priority), string(*upd.Priority))
		task.Priority = *upd.Priority
	}
	if upd.EstimatedEffort != nil {
		record("estimatedEffort", formatEffort(task.EstimatedEffort), formatEffort(*upd.EstimatedEffort))
		task.EstimatedEffort = *upd.EstimatedEffort
	}
	if upd.ActualEffort != nil {
		record("actualEffort", formatEffort(task.ActualEffort), formatEffort(*upd.ActualEffort))
		task.ActualEffort = *upd.ActualEffort
	}
	if upd.AssignedUser != nil {
		record("assignedUser", assignedValue(task.AssignedUser), *upd.AssignedUser)
		v := *upd.AssignedUser
		task.AssignedUser = &v
	}
	if upd.Project != nil {
		record("project", task.Project, *upd.Project)
		task.Project = *upd.Project
	}
	return changes
}

// AddTask appends a task to an item, placing it at the end of the active
// list, and recomputes the item's effort totals.
func (s *SprintService) AddTask(itemID string, task database.Task, actorID string, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("AddTask: item not found: %s", itemID)
		return nil
	}
	snapshot := sprint.Clone()

	if task.ID == "" {
		task.ID = newTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.CreatedBy == "" {
		task.CreatedBy = actorID
	}
	task.Order = len(item.ActiveTasks()) + 1
	item.Tasks = append(item.Tasks, task)
	item.RecalculateEffort()

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// RemoveItem deletes an item from the current sprint. MarkRemoved stamps
// the deletion timestamp; Purge splices the item out entirely. The
// remaining active items are renumbered densely either way.
func (s *SprintService) RemoveItem(itemID string, mode database.DeleteMode, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	idx := -1
	for i := range sprint.Items {
		if sprint.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		log.Printf("RemoveItem: item not found: %s", itemID)
		return nil
	}
	snapshot := sprint.Clone()

	switch mode {
	case database.Purge:
		sprint.Items = append(sprint.Items[:idx], sprint.Items[idx+1:]...)
	default:
		now := time.Now().UTC()
		sprint.Items[idx].DeletedAt = &now
	}
	database.RenumberItems(sprint.Items)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// RemoveTask deletes a task from an item, renumbers the remaining active
// tasks and recomputes the item's effort totals.
func (s *SprintService) RemoveTask(taskID, itemID string, mode database.DeleteMode, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("RemoveTask: item not found: %s", itemID)
		return nil
	}
	idx := -1
	for i := range item.Tasks {
		if item.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		log.Printf("RemoveTask: task not found: %s", taskID)
		return nil
	}
	snapshot := sprint.Clone()

	switch mode {
	case database.Purge:
		item.Tasks = append(item.Tasks[:idx], item.Tasks[idx+1:]...)
	default:
		now := time.Now().UTC()
		item.Tasks[idx].DeletedAt = &now
	}
	database.RenumberTasks(item.Tasks)
	item.RecalculateEffort()

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// MoveItemToSprint removes an item from the current sprint and appends it
// to the target sprint, renumbering the active items on both sides. The
// target's backup count is refreshed before its list grows so the growth is
// not misread as a loss on the target's next save.
func (s *SprintService) MoveItemToSprint(itemID, targetSprintID string, force bool) error {
	s.mu.Lock()
	source := s.currentLocked()
	target := s.findLocked(targetSprintID)
	if source == nil || target == nil {
		s.mu.Unlock()
		return fmt.Errorf("source or target sprint not found")
	}

	idx := -1
	for i := range source.Items {
		if source.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return fmt.Errorf("item not found in current sprint: %s", itemID)
	}

	sourceSnapshot := source.Clone()
	item := source.Items[idx]

	source.Items = append(source.Items[:idx], source.Items[idx+1:]...)
	database.RenumberItems(source.Items)

	sourceOut, err := s.guardLocked(source, sourceSnapshot, force)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	targetSnapshot := target.Clone()
	s.backupCounts[target.ID] = len(target.Items)
	target.Items = append(target.Items, item)
	database.RenumberItems(target.Items)

	targetOut, err := s.guardLocked(target, targetSnapshot, force)
	if err != nil {
		// Should not happen: the target only grew. Put the source back too.
		*source = sourceSnapshot
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.persist(sourceOut); err != nil {
		return err
	}
	return s.persist(targetOut)
}

// DuplicateItem clones an item onto the end of the current sprint's active
// list with fresh ids and reset actuals. Tasks are deep-cloned only when
// includeTasks is set.
func (s *SprintService) DuplicateItem(itemID string, includeTasks bool, actorID string, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	original := findItem(sprint, itemID)
	if original == nil {
		s.mu.Unlock()
		log.Printf("DuplicateItem: item not found: %s", itemID)
		return nil
	}

	now := time.Now().UTC()
	dup := *original
	dup.ID = newItemID()
	dup.Order = maxActiveOrder(sprint.Items) + 1
	dup.CreatedAt = now
	dup.CreatedBy = actorID
	dup.ActualEffort = 0
	dup.DeletedAt = nil
	dup.Tasks = []database.Task{}
	if includeTasks {
		for _, t := range original.Tasks {
			clone := t
			clone.ID = newTaskID()
			clone.CreatedAt = now
			clone.CreatedBy = actorID
			clone.ActualEffort = 0
			dup.Tasks = append(dup.Tasks, clone)
		}
	}
	s.mu.Unlock()

	return s.AddItem(dup, actorID, force)
}

// DuplicateTask clones a task onto the end of its item's active list.
func (s *SprintService) DuplicateTask(taskID, itemID string, actorID string, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("DuplicateTask: item not found: %s", itemID)
		return nil
	}
	original := findTask(item, taskID)
	if original == nil {
		s.mu.Unlock()
		log.Printf("DuplicateTask: task not found: %s", taskID)
		return nil
	}
	snapshot := sprint.Clone()

	maxOrder := 0
	for _, t := range item.ActiveTasks() {
		if t.Order > maxOrder {
			maxOrder = t.Order
		}
	}

	dup := *original
	dup.ID = newTaskID()
	dup.Order = maxOrder + 1
	dup.CreatedAt = time.Now().UTC()
	dup.CreatedBy = actorID
	dup.DeletedAt = nil
	item.Tasks = append(item.Tasks, dup)
	item.RecalculateEffort()

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// CopyItemWithTaskSplit finalizes an item: tasks in Done state stay on the
// original, which is marked Done, and the rest move to a new "<title> Copy"
// sibling inserted right after it. Both task lists are re-sorted and all
// active items renumbered.
func (s *SprintService) CopyItemWithTaskSplit(itemID, actorID string, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	originalIdx := -1
	for i := range sprint.Items {
		if sprint.Items[i].ID == itemID {
			originalIdx = i
			break
		}
	}
	if originalIdx == -1 {
		s.mu.Unlock()
		log.Printf("CopyItemWithTaskSplit: item not found: %s", itemID)
		return nil
	}
	snapshot := sprint.Clone()

	original := &sprint.Items[originalIdx]
	done, pending := database.SplitDoneTasks(original.Tasks)

	now := time.Now().UTC()
	copied := *original
	copied.ID = newItemID()
	copied.Title = original.Title + " Copy"
	copied.Order = original.Order + 1
	copied.CreatedAt = now
	copied.CreatedBy = actorID
	copied.Tasks = make([]database.Task, 0, len(pending))
	for _, t := range pending {
		clone := t
		clone.ID = newTaskID()
		clone.CreatedAt = now
		clone.CreatedBy = actorID
		copied.Tasks = append(copied.Tasks, clone)
	}

	original.Tasks = done
	if original.Tasks == nil {
		original.Tasks = []database.Task{}
	}
	original.State = database.StateDone

	if len(original.Tasks) > 0 {
		original.Tasks = database.SortTasks(original.Tasks, database.RankWaitingFirst)
	}
	if len(copied.Tasks) > 0 {
		copied.Tasks = database.SortTasks(copied.Tasks, database.RankWaitingFirst)
	}

	sprint.Items = append(sprint.Items[:originalIdx+1],
		append([]database.Item{copied}, sprint.Items[originalIdx+1:]...)...)
	database.RenumberItems(sprint.Items)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// SortItemTasks applies the state-then-priority ordering to an item's tasks.
func (s *SprintService) SortItemTasks(itemID string, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("SortItemTasks: item not found: %s", itemID)
		return nil
	}
	snapshot := sprint.Clone()

	item.Tasks = database.SortTasks(item.Tasks, database.RankInProgressFirst)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// MoveTask moves a task between items of the current sprint, inserting it
// at newIndex in the destination's task list (drag and drop).
func (s *SprintService) MoveTask(fromItemID, toItemID, taskID string, newIndex int, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	from := findItem(sprint, fromItemID)
	to := findItem(sprint, toItemID)
	if from == nil || to == nil {
		s.mu.Unlock()
		log.Printf("MoveTask: item not found: %s -> %s", fromItemID, toItemID)
		return nil
	}
	idx := -1
	for i := range from.Tasks {
		if from.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		log.Printf("MoveTask: task not found: %s", taskID)
		return nil
	}
	snapshot := sprint.Clone()

	task := from.Tasks[idx]
	from.Tasks = append(from.Tasks[:idx], from.Tasks[idx+1:]...)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(to.Tasks) {
		newIndex = len(to.Tasks)
	}
	to.Tasks = append(to.Tasks[:newIndex],
		append([]database.Task{task}, to.Tasks[newIndex:]...)...)
	from.RecalculateEffort()
	to.RecalculateEffort()

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// ReorderTasks moves a task within its item's list (drag and drop).
func (s *SprintService) ReorderTasks(itemID string, oldIndex, newIndex int, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	item := findItem(sprint, itemID)
	if item == nil {
		s.mu.Unlock()
		log.Printf("ReorderTasks: item not found: %s", itemID)
		return nil
	}
	if oldIndex < 0 || oldIndex >= len(item.Tasks) {
		s.mu.Unlock()
		return nil
	}
	snapshot := sprint.Clone()

	task := item.Tasks[oldIndex]
	item.Tasks = append(item.Tasks[:oldIndex], item.Tasks[oldIndex+1:]...)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(item.Tasks) {
		newIndex = len(item.Tasks)
	}
	item.Tasks = append(item.Tasks[:newIndex],
		append([]database.Task{task}, item.Tasks[newIndex:]...)...)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// CreateNextSprint appends a sprint numbered after the highest existing
// one, starting the day the previous sprint ends.
func (s *SprintService) CreateNextSprint() (*database.Sprint, error) {
	s.mu.Lock()
	if len(s.sprints) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("no sprints loaded")
	}

	last := &s.sprints[0]
	maxNumber := 0
	for i := range s.sprints {
		if n := s.sprints[i].Number(); n > maxNumber {
			maxNumber = n
			last = &s.sprints[i]
		}
	}

	next := database.Sprint{
		ID:              fmt.Sprintf("sprint-%d", maxNumber+1),
		Title:           fmt.Sprintf("Sprint %d", maxNumber+1),
		StartDate:       last.EndDate,
		EndDate:         last.EndDate.Add(database.SprintDuration),
		WorkingDays:     database.FullWorkingDays(),
		UserWorkingDays: make(map[string][]bool),
		Items:           []database.Item{},
	}
	s.sprints = append(s.sprints, next.Clone())
	s.backupCounts[next.ID] = 0
	s.mu.Unlock()

	if err := s.persist(next); err != nil {
		return nil, err
	}
	s.watchSprint(next.ID)
	return &next, nil
}

// RecalculateSprintDates reorders sprints by their numeric id suffix, pins
// sprint-1 to the epoch and cascades start = previous end, end = start plus
// fourteen days through the sequence, persisting each sprint.
func (s *SprintService) RecalculateSprintDates() error {
	s.mu.Lock()
	sort.Slice(s.sprints, func(a, b int) bool {
		return s.sprints[a].Number() < s.sprints[b].Number()
	})

	if len(s.sprints) > 0 && s.sprints[0].ID == "sprint-1" {
		s.sprints[0].StartDate = sprintEpoch
		s.sprints[0].EndDate = sprintEpoch.Add(database.SprintDuration)
	}
	for i := 1; i < len(s.sprints); i++ {
		s.sprints[i].StartDate = s.sprints[i-1].EndDate
		s.sprints[i].EndDate = s.sprints[i].StartDate.Add(database.SprintDuration)
	}

	out := make([]database.Sprint, len(s.sprints))
	for i := range s.sprints {
		out[i] = s.sprints[i].Clone()
	}
	s.mu.Unlock()

	for i := range out {
		if err := s.persist(out[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSprintWorkingDays replaces the current sprint's working-day vector.
func (s *SprintService) UpdateSprintWorkingDays(days []bool, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	snapshot := sprint.Clone()

	sprint.WorkingDays = append([]bool(nil), days...)
	sprint.Normalize()

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// UpdateSprintWorkingDayCount is the legacy scalar entry point: the first
// count slots are enabled, the rest disabled.
func (s *SprintService) UpdateSprintWorkingDayCount(count int, force bool) error {
	days := make([]bool, len(database.FullWorkingDays()))
	for i := range days {
		days[i] = i < count
	}
	return s.UpdateSprintWorkingDays(days, force)
}

// UpdateUserWorkingDays sets one user's working-day override on the current
// sprint.
func (s *SprintService) UpdateUserWorkingDays(userID string, days []bool, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return nil
	}
	snapshot := sprint.Clone()

	sprint.UserWorkingDays[userID] = append([]bool(nil), days...)

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}

// ImportItems appends sanitized imported items to the current sprint,
// assigning order values after the existing active items.
func (s *SprintService) ImportItems(items []database.Item, force bool) error {
	s.mu.Lock()
	sprint := s.currentLocked()
	if sprint == nil {
		s.mu.Unlock()
		return fmt.Errorf("no current sprint")
	}
	snapshot := sprint.Clone()

	base := maxActiveOrder(sprint.Items)
	for i := range items {
		items[i].Order = base + i + 1
		sprint.Items = append(sprint.Items, items[i])
	}

	out, err := s.guardLocked(sprint, snapshot, force)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(out)
}
