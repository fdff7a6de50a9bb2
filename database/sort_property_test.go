package database

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func taskGen() *rapid.Generator[Task] {
	return rapid.Custom(func(t *rapid.T) Task {
		task := Task{
			ID:       rapid.StringMatching(`task-[a-z0-9]{8}`).Draw(t, "id"),
			State:    rapid.SampledFrom(States).Draw(t, "state"),
			Priority: rapid.SampledFrom(Priorities).Draw(t, "priority"),
			Order:    rapid.IntRange(0, 50).Draw(t, "order"),
		}
		if rapid.Bool().Draw(t, "deleted") {
			at := time.Unix(rapid.Int64Range(1e9, 2e9).Draw(t, "deletedAt"), 0)
			task.DeletedAt = &at
		}
		return task
	})
}

func TestSortTasksProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tasks := rapid.SliceOfN(taskGen(), 0, 20).Draw(t, "tasks")
		policy := rapid.SampledFrom([]RankPolicy{RankInProgressFirst, RankWaitingFirst}).Draw(t, "policy")

		sorted := SortTasks(tasks, policy)

		if len(sorted) != len(tasks) {
			t.Fatalf("sort changed task count: %d != %d", len(sorted), len(tasks))
		}

		// Actives come first, densely numbered, in non-decreasing rank.
		activeCount := 0
		for _, task := range tasks {
			if task.Active() {
				activeCount++
			}
		}
		for i := 0; i < activeCount; i++ {
			if !sorted[i].Active() {
				t.Fatalf("deleted task %q before active tail", sorted[i].ID)
			}
			if sorted[i].Order != i+1 {
				t.Fatalf("active task %q has order %d, want %d", sorted[i].ID, sorted[i].Order, i+1)
			}
			if i > 0 {
				prev, cur := sorted[i-1], sorted[i]
				if policy[prev.State] > policy[cur.State] {
					t.Fatalf("state rank regressed at %d: %s before %s", i, prev.State, cur.State)
				}
				if policy[prev.State] == policy[cur.State] &&
					priorityRank[prev.Priority] > priorityRank[cur.Priority] {
					t.Fatalf("priority rank regressed at %d: %s before %s", i, prev.Priority, cur.Priority)
				}
			}
		}
		for _, task := range sorted[activeCount:] {
			if task.Active() {
				t.Fatalf("active task %q in deleted tail", task.ID)
			}
		}

		// Sorting again is a no-op.
		again := SortTasks(sorted, policy)
		for i := range again {
			if again[i].ID != sorted[i].ID || again[i].Order != sorted[i].Order {
				t.Fatalf("sort is not idempotent at index %d", i)
			}
		}
	})
}
