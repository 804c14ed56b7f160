package report

import (
	"cmp"
	"time"

	"taskboard/internal/domain"
)

// maxBy returns the first element with the greatest key, or nil for an empty slice.
func maxBy[T any, K cmp.Ordered](items []T, key func(T) K) *T {
	var best *T
	var bestKey K
	for i := range items {
		k := key(items[i])
		if best == nil || k > bestKey {
			best, bestKey = &items[i], k
		}
	}
	return best
}

func minBy[T any, K cmp.Ordered](items []T, key func(T) K) *T {
	var best *T
	var bestKey K
	for i := range items {
		k := key(items[i])
		if best == nil || k < bestKey {
			best, bestKey = &items[i], k
		}
	}
	return best
}

func longestByDescription(tasks []domain.Task) *domain.Task {
	return maxBy(tasks, func(t domain.Task) int { return domain.TextLen(t.Description) })
}

func shortestByName(tasks []domain.Task) *domain.Task {
	return minBy(tasks, func(t domain.Task) int { return domain.TextLen(t.Name) })
}

// longestRunning measures unfinished tasks up to now.
func longestRunning(tasks []domain.Task, now time.Time) *domain.Task {
	return maxBy(tasks, func(t domain.Task) time.Duration {
		end := now
		if t.FinishedAt != nil {
			end = *t.FinishedAt
		}
		return end.Sub(t.CreatedAt)
	})
}

// countNotFinished counts every task that did not end Done; Canceled tasks are included.
func countNotFinished(tasks []domain.Task) int {
	n := 0
	for _, t := range tasks {
		switch t.State {
		case domain.ToDo, domain.InProgress, domain.Canceled:
			n++
		}
	}
	return n
}

func capitalized(tasks []domain.Task) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if domain.StartsUpper(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

const (
	teamDisclosureDescriptionLen = 20
	teamDisclosureTaskCount      = 3
)

// discloseTeamSize decides whether ProjectInfo carries TeamMembersCount.
func discloseTeamSize(p domain.Project, taskCount int) bool {
	return domain.TextLen(p.Description) > teamDisclosureDescriptionLen || taskCount < teamDisclosureTaskCount
}

func groupBy[T any](items []T, key func(T) int64) map[int64][]T {
	out := map[int64][]T{}
	for _, it := range items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}
