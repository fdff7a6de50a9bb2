package services

import (
	"time"

	"github.com/CrowderSoup/sprint-app/database"
)

// summaryPrompt accompanies a sprint export so the completed work can be
// pasted into an LLM for a review write-up.
const summaryPrompt = "You are given the completed items and tasks of a two-week sprint as JSON. " +
	"Write a concise sprint summary for the team: group the work by item, mention who it was " +
	"assigned to, call out the total estimated versus actual effort, and keep it under 200 words."

// SprintSummaryExport is the per-sprint export format: only Done work plus
// a summarization prompt.
type SprintSummaryExport struct {
	SprintID   string          `json:"sprintId"`
	Title      string          `json:"title"`
	StartDate  time.Time       `json:"startDate"`
	EndDate    time.Time       `json:"endDate"`
	Items      []database.Item `json:"items"`
	Prompt     string          `json:"prompt"`
	ExportedAt time.Time       `json:"exportedAt"`
}

// ExportSprintSummary filters a sprint down to active items and tasks in
// Done state and bundles them with the summarization prompt.
func ExportSprintSummary(sprint *database.Sprint) *SprintSummaryExport {
	var items []database.Item
	for i := range sprint.Items {
		item := sprint.Items[i]
		if !item.Active() || item.State != database.StateDone {
			continue
		}
		var doneTasks []database.Task
		for _, t := range item.Tasks {
			if t.Active() && t.State == database.StateDone {
				doneTasks = append(doneTasks, t)
			}
		}
		item.Tasks = doneTasks
		items = append(items, item)
	}

	return &SprintSummaryExport{
		SprintID:   sprint.ID,
		Title:      sprint.Title,
		StartDate:  sprint.StartDate,
		EndDate:    sprint.EndDate,
		Items:      items,
		Prompt:     summaryPrompt,
		ExportedAt: time.Now().UTC(),
	}
}
