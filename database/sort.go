package database

import "sort"

// SortTasks orders the active tasks of a list by state rank, then priority,
// then the previous manual order (so the sort is stable), renumbers the
// active tasks densely 1..N, and returns the sorted actives followed by the
// soft-deleted tasks unchanged. Deleted tasks keep their stale order values;
// they are filtered out everywhere they would matter.
func SortTasks(tasks []Task, policy RankPolicy) []Task {
	var active, deleted []Task
	for _, t := range tasks {
		if t.Active() {
			active = append(active, t)
		} else {
			deleted = append(deleted, t)
		}
	}

	sort.SliceStable(active, func(a, b int) bool {
		if policy[active[a].State] != policy[active[b].State] {
			return policy[active[a].State] < policy[active[b].State]
		}
		if priorityRank[active[a].Priority] != priorityRank[active[b].Priority] {
			return priorityRank[active[a].Priority] < priorityRank[active[b].Priority]
		}
		return active[a].Order < active[b].Order
	})

	for i := range active {
		active[i].Order = i + 1
	}

	return append(active, deleted...)
}

// SplitDoneTasks partitions a task list into tasks in Done state and the
// rest, preserving relative order within each partition.
func SplitDoneTasks(tasks []Task) (done, pending []Task) {
	for _, t := range tasks {
		if t.State == StateDone {
			done = append(done, t)
		} else {
			pending = append(pending, t)
		}
	}
	return done, pending
}

// RenumberItems assigns dense 1..N order values to the active items of a
// sprint, preserving their current relative order. Deleted items are left
// untouched.
func RenumberItems(items []Item) {
	n := 0
	for i := range items {
		if items[i].Active() {
			n++
			items[i].Order = n
		}
	}
}

// RenumberTasks is RenumberItems for a task list.
func RenumberTasks(tasks []Task) {
	n := 0
	for i := range tasks {
		if tasks[i].Active() {
			n++
			tasks[i].Order = n
		}
	}
}
