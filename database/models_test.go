package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateValid(t *testing.T) {
	for _, s := range States {
		assert.True(t, s.Valid(), "state %q should be valid", s)
	}
	assert.False(t, State("Doing").Valid())
	assert.False(t, State("").Valid())
}

func TestPriorityValid(t *testing.T) {
	for _, p := range Priorities {
		assert.True(t, p.Valid(), "priority %q should be valid", p)
	}
	assert.False(t, Priority("Low").Valid())
	assert.False(t, Priority("").Valid())
}

func TestSprintNumber(t *testing.T) {
	assert.Equal(t, 12, (&Sprint{ID: "sprint-12"}).Number())
	assert.Equal(t, 1, (&Sprint{ID: "sprint-1"}).Number())
	assert.Equal(t, 0, (&Sprint{ID: "backlog"}).Number())
	assert.Equal(t, 0, (&Sprint{ID: "sprint-x"}).Number())
}

func TestNormalizeWorkingDays(t *testing.T) {
	t.Run("missing vector defaults to all enabled", func(t *testing.T) {
		s := Sprint{ID: "sprint-1"}
		s.Normalize()
		require.Len(t, s.WorkingDays, 10)
		for _, d := range s.WorkingDays {
			assert.True(t, d)
		}
	})

	t.Run("short vector is padded with true", func(t *testing.T) {
		s := Sprint{ID: "sprint-1", WorkingDays: []bool{false, true, false}}
		s.Normalize()
		require.Len(t, s.WorkingDays, 10)
		assert.Equal(t, []bool{false, true, false}, s.WorkingDays[:3])
		for _, d := range s.WorkingDays[3:] {
			assert.True(t, d)
		}
	})

	t.Run("long vector is truncated", func(t *testing.T) {
		long := make([]bool, 14)
		s := Sprint{ID: "sprint-1", WorkingDays: long}
		s.Normalize()
		assert.Len(t, s.WorkingDays, 10)
	})

	t.Run("legacy scalar count migrates to a vector", func(t *testing.T) {
		count := 7
		s := Sprint{ID: "sprint-1", LegacyWorkingDayCount: &count}
		s.Normalize()
		require.Len(t, s.WorkingDays, 10)
		for i, d := range s.WorkingDays {
			assert.Equal(t, i < 7, d, "slot %d", i)
		}
		assert.Nil(t, s.LegacyWorkingDayCount)
	})
}

func TestNormalizeBackfills(t *testing.T) {
	s := Sprint{
		ID:    "sprint-1",
		Items: []Item{{ID: "item-1"}},
	}
	s.Normalize()

	assert.NotNil(t, s.UserWorkingDays)
	require.Len(t, s.Items, 1)
	assert.NotNil(t, s.Items[0].Tasks)
}

func TestRecalculateEffortSumsActiveTasksOnly(t *testing.T) {
	deleted := time.Now()
	item := Item{
		EstimatedEffort: 99,
		ActualEffort:    99,
		Tasks: []Task{
			{EstimatedEffort: 3, ActualEffort: 1},
			{EstimatedEffort: 5, ActualEffort: 2},
			{EstimatedEffort: 8, ActualEffort: 8, DeletedAt: &deleted},
		},
	}
	item.RecalculateEffort()

	assert.Equal(t, 8.0, item.EstimatedEffort)
	assert.Equal(t, 3.0, item.ActualEffort)
}

func TestRecalculateEffortKeepsValuesWithoutTasks(t *testing.T) {
	item := Item{EstimatedEffort: 13, ActualEffort: 4}
	item.RecalculateEffort()

	assert.Equal(t, 13.0, item.EstimatedEffort)
	assert.Equal(t, 4.0, item.ActualEffort)
}

func TestCloneIsDeep(t *testing.T) {
	s := Sprint{
		ID:              "sprint-1",
		WorkingDays:     FullWorkingDays(),
		UserWorkingDays: map[string][]bool{"u1": {true, false}},
		Items: []Item{
			{ID: "item-1", Tasks: []Task{{ID: "task-1", Title: "a"}}},
		},
	}

	clone := s.Clone()
	clone.Items[0].Tasks[0].Title = "changed"
	clone.WorkingDays[0] = false
	clone.UserWorkingDays["u1"][0] = false

	assert.Equal(t, "a", s.Items[0].Tasks[0].Title)
	assert.True(t, s.WorkingDays[0])
	assert.True(t, s.UserWorkingDays["u1"][0])
}
