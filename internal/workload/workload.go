// Package workload groups an organization's tasks by assignee for reporting,
// producing raw counts and story-point-weighted sums, plus the snapshot
// counters shown on the dashboard. Inputs are an already-fetched, already
// tenant-scoped slice of tasks; nothing here touches storage.
package workload

import "sprintline/internal/domain"

// Synthetic bucket labels for tasks without a resolvable assignee.
const (
	LabelUnassigned  = "Unassigned"
	LabelDeletedUser = "Deleted User"
)

// AssigneeAggregate is one bucket of the per-assignee grouping. AssigneeID
// is nil for the synthetic Unassigned bucket.
type AssigneeAggregate struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
	Label      string  `json:"name"`
	TaskCount  int     `json:"count"`
	Points     int     `json:"points"`
}

// Stats are the snapshot counters. Pending is every non-done status.
type Stats struct {
	Total     int `json:"total_tasks"`
	Completed int `json:"completed_tasks"`
	Pending   int `json:"pending_tasks"`
}

type resolutionKind int

const (
	resolved resolutionKind = iota
	unassigned
	dangling
)

// resolution is the tagged outcome of looking up an assignee reference.
type resolution struct {
	kind resolutionKind
	name string
}

func resolveAssignee(id *string, names map[string]string) resolution {
	if id == nil || *id == "" {
		return resolution{kind: unassigned}
	}
	if name, ok := names[*id]; ok {
		return resolution{kind: resolved, name: name}
	}
	return resolution{kind: dangling}
}

// label maps a resolution to its display string. unresolvedLabel is the
// fallback for the unassigned variant; dangling references are always
// labeled Deleted User.
func (r resolution) label(unresolvedLabel string) string {
	switch r.kind {
	case resolved:
		return r.name
	case unassigned:
		return unresolvedLabel
	default:
		return LabelDeletedUser
	}
}

// Distribution groups all tasks by assignee. names maps user id to display
// name; ids absent from the map resolve to the Deleted User bucket and nil
// assignees to the Unassigned bucket. Bucket order is not guaranteed.
func Distribution(tasks []domain.Task, names map[string]string) []AssigneeAggregate {
	return aggregate(tasks, names, LabelUnassigned, false)
}

// Performance is Distribution restricted to done tasks. A completed task
// without a resolvable assignee is orphaned rather than never-assigned, so
// the unassigned fallback is Deleted User here.
func Performance(tasks []domain.Task, names map[string]string) []AssigneeAggregate {
	return aggregate(tasks, names, LabelDeletedUser, true)
}

func aggregate(tasks []domain.Task, names map[string]string, unresolvedLabel string, doneOnly bool) []AssigneeAggregate {
	buckets := map[string]*AssigneeAggregate{}
	var order []string
	for i := range tasks {
		t := &tasks[i]
		if doneOnly && t.Status != domain.StatusDone {
			continue
		}
		key := ""
		if t.AssigneeID != nil {
			key = *t.AssigneeID
		}
		b, ok := buckets[key]
		if !ok {
			res := resolveAssignee(t.AssigneeID, names)
			b = &AssigneeAggregate{
				AssigneeID: t.AssigneeID,
				Label:      res.label(unresolvedLabel),
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.TaskCount++
		b.Points += t.Points
	}
	out := make([]AssigneeAggregate, 0, len(order))
	for _, key := range order {
		out = append(out, *buckets[key])
	}
	return out
}

// Counts returns the snapshot counters over the full task set.
func Counts(tasks []domain.Task) Stats {
	s := Stats{Total: len(tasks)}
	for i := range tasks {
		if tasks[i].Status == domain.StatusDone {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	return s
}
