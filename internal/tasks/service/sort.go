package service

import (
	"sort"

	"tripdesk_backend/internal/tasks/repository"
)

var priorityRank = map[string]int{
	repository.PriorityUrgent: 0,
	repository.PriorityHigh:   1,
	repository.PriorityMedium: 2,
	repository.PriorityLow:    3,
}

// SortTasks orders tasks into working order: strongest priority first, then
// earliest due date, tasks without a due date after dated ones. The sort is
// stable so equal tasks keep their incoming order. The database applies the
// same ordering; this exists for in-memory paths like the scheduler sweep.
func SortTasks(tasks []repository.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]

		ra, ok := priorityRank[a.Priority]
		if !ok {
			ra = len(priorityRank)
		}
		rb, ok := priorityRank[b.Priority]
		if !ok {
			rb = len(priorityRank)
		}
		if ra != rb {
			return ra < rb
		}

		switch {
		case a.DueAt == nil && b.DueAt == nil:
			return false
		case a.DueAt == nil:
			return false
		case b.DueAt == nil:
			return true
		default:
			return a.DueAt.Before(*b.DueAt)
		}
	})
}
