package workload_test

import (
	"testing"

	"sprintline/internal/domain"
	"sprintline/internal/workload"
)

func strPtr(s string) *string { return &s }

func task(assignee *string, points int, status string) domain.Task {
	return domain.Task{AssigneeID: assignee, Points: points, Status: status}
}

func findByLabel(t *testing.T, aggs []workload.AssigneeAggregate, label string) workload.AssigneeAggregate {
	t.Helper()
	for _, a := range aggs {
		if a.Label == label {
			return a
		}
	}
	t.Fatalf("no bucket labeled %q in %+v", label, aggs)
	return workload.AssigneeAggregate{}
}

func TestDistributionGroupsByAssignee(t *testing.T) {
	names := map[string]string{"u1": "Ada"}
	tasks := []domain.Task{
		task(strPtr("u1"), 5, domain.StatusTodo),
		task(nil, 3, domain.StatusInProgress),
	}
	dist := workload.Distribution(tasks, names)
	if len(dist) != 2 {
		t.Fatalf("got %d buckets, want 2", len(dist))
	}
	ada := findByLabel(t, dist, "Ada")
	if ada.TaskCount != 1 || ada.Points != 5 {
		t.Errorf("Ada bucket = %+v", ada)
	}
	un := findByLabel(t, dist, workload.LabelUnassigned)
	if un.TaskCount != 1 || un.Points != 3 {
		t.Errorf("Unassigned bucket = %+v", un)
	}
	if un.AssigneeID != nil {
		t.Errorf("Unassigned bucket carries an assignee id")
	}
}

func TestDistributionConservesCountsAndPoints(t *testing.T) {
	names := map[string]string{"u1": "Ada", "u2": "Grace"}
	tasks := []domain.Task{
		task(strPtr("u1"), 5, domain.StatusDone),
		task(strPtr("u1"), 2, domain.StatusTodo),
		task(strPtr("u2"), 8, domain.StatusInProgress),
		task(strPtr("gone"), 1, domain.StatusTodo),
		task(nil, 3, domain.StatusTodo),
	}
	dist := workload.Distribution(tasks, names)
	var count, points int
	for _, b := range dist {
		count += b.TaskCount
		points += b.Points
	}
	if count != len(tasks) {
		t.Errorf("task count sum = %d, want %d", count, len(tasks))
	}
	if points != 19 {
		t.Errorf("point sum = %d, want 19", points)
	}
}

func TestDistributionLabelsDanglingReference(t *testing.T) {
	tasks := []domain.Task{task(strPtr("deleted"), 4, domain.StatusTodo)}
	dist := workload.Distribution(tasks, map[string]string{})
	b := findByLabel(t, dist, workload.LabelDeletedUser)
	if b.TaskCount != 1 || b.Points != 4 {
		t.Errorf("dangling bucket = %+v", b)
	}
}

func TestPerformanceOnlyCountsDoneTasks(t *testing.T) {
	names := map[string]string{"u1": "Ada", "u2": "Grace"}
	tasks := []domain.Task{
		task(strPtr("u1"), 5, domain.StatusDone),
		task(strPtr("u1"), 2, domain.StatusTodo),
		task(strPtr("u2"), 8, domain.StatusDone),
		task(strPtr("u2"), 1, domain.StatusInProgress),
	}
	perf := workload.Performance(tasks, names)
	var count int
	for _, b := range perf {
		count += b.TaskCount
	}
	if count != 2 {
		t.Errorf("done count = %d, want 2", count)
	}
	ada := findByLabel(t, perf, "Ada")
	if ada.Points != 5 {
		t.Errorf("Ada points = %d, want 5", ada.Points)
	}
}

func TestPerformanceFallbackIsDeletedUser(t *testing.T) {
	tasks := []domain.Task{
		task(nil, 2, domain.StatusDone),
		task(strPtr("gone"), 3, domain.StatusDone),
	}
	perf := workload.Performance(tasks, map[string]string{})
	for _, b := range perf {
		if b.Label != workload.LabelDeletedUser {
			t.Errorf("bucket label = %q, want %q", b.Label, workload.LabelDeletedUser)
		}
	}
	if len(perf) != 2 {
		t.Errorf("got %d buckets, want 2 (nil and dangling group separately)", len(perf))
	}
}

func TestEmptyInputYieldsEmptySlices(t *testing.T) {
	if dist := workload.Distribution(nil, nil); dist == nil || len(dist) != 0 {
		t.Errorf("Distribution(nil) = %v, want empty non-nil", dist)
	}
	if perf := workload.Performance(nil, nil); perf == nil || len(perf) != 0 {
		t.Errorf("Performance(nil) = %v, want empty non-nil", perf)
	}
}

func TestCounts(t *testing.T) {
	tasks := []domain.Task{
		task(nil, 0, domain.StatusDone),
		task(nil, 0, domain.StatusTodo),
		task(nil, 0, domain.StatusInProgress),
	}
	s := workload.Counts(tasks)
	if s.Total != 3 || s.Completed != 1 || s.Pending != 2 {
		t.Errorf("counts = %+v", s)
	}
	empty := workload.Counts(nil)
	if empty.Total != 0 || empty.Completed != 0 || empty.Pending != 0 {
		t.Errorf("empty counts = %+v", empty)
	}
}
