package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"sprintline/internal/config"
	"sprintline/internal/db"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/migrate"
	"sprintline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	OrgID  string
	UserID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	// org creation week anchors to Monday 2024-01-01
	eng.Now = func() time.Time { return time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	u, orgs, err := eng.RegisterUser(ctx, engine.RegisterOptions{
		Name: "Ada", Email: "ada@example.com", Password: "secret1", OrgName: "Acme",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(orgs) != 1 {
		t.Fatalf("expected one org, got %d", len(orgs))
	}
	return &testEnv{Engine: eng, Ctx: ctx, OrgID: orgs[0].ID, UserID: u.ID}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Authenticate(env.Ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != env.UserID {
		t.Fatalf("unexpected user %s", u.ID)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ada@example.com", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody@example.com", "secret1"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{
		Name: "Ada Again", Email: "ADA@example.com", Password: "secret1",
	})
	if !errors.Is(err, engine.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestJoinByInviteCode(t *testing.T) {
	env := newTestEnv(t)
	org, err := env.Engine.Repo.GetOrganization(env.Ctx, env.OrgID)
	if err != nil {
		t.Fatal(err)
	}
	u, orgs, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{
		Name: "Grace", Email: "grace@example.com", Password: "secret1", InviteCode: org.InviteCode,
	})
	if err != nil {
		t.Fatalf("register with code: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != env.OrgID {
		t.Fatalf("expected membership of %s, got %+v", env.OrgID, orgs)
	}
	if err := env.Engine.RequireMembership(env.Ctx, env.OrgID, u.ID); err != nil {
		t.Fatalf("membership check: %v", err)
	}
}

func TestInviteExistingAndPending(t *testing.T) {
	env := newTestEnv(t)
	other, _, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{
		Name: "Grace", Email: "grace@example.com", Password: "secret1",
	})
	if err != nil {
		t.Fatal(err)
	}
	joined, err := env.Engine.InviteMember(env.Ctx, env.OrgID, "grace@example.com", env.UserID)
	if err != nil {
		t.Fatalf("invite existing: %v", err)
	}
	if !joined {
		t.Fatalf("expected existing user joined immediately")
	}
	if err := env.Engine.RequireMembership(env.Ctx, env.OrgID, other.ID); err != nil {
		t.Fatalf("membership: %v", err)
	}

	// unknown email becomes a pending invite consumed at registration
	joined, err = env.Engine.InviteMember(env.Ctx, env.OrgID, "alan@example.com", env.UserID)
	if err != nil {
		t.Fatalf("invite pending: %v", err)
	}
	if joined {
		t.Fatalf("expected pending invite, not immediate join")
	}
	alan, orgs, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{
		Name: "Alan", Email: "alan@example.com", Password: "secret1",
	})
	if err != nil {
		t.Fatalf("register invited: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != env.OrgID {
		t.Fatalf("expected pending invite consumed, got %+v", orgs)
	}
	if err := env.Engine.RequireMembership(env.Ctx, env.OrgID, alan.ID); err != nil {
		t.Fatalf("membership after register: %v", err)
	}
	invites, err := env.Engine.Repo.ListInvites(env.Ctx, env.OrgID)
	if err != nil {
		t.Fatal(err)
	}
	if len(invites) != 0 {
		t.Fatalf("expected invites consumed, have %d", len(invites))
	}
}

func TestCreateTaskAssignsSprintIndex(t *testing.T) {
	env := newTestEnv(t)
	// org created Wed Jan 3; anchor Monday is Jan 1
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "first", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.SprintIndex != 1 {
		t.Fatalf("sprint index = %d, want 1", task.SprintIndex)
	}
	later, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID:     env.OrgID,
		Title:     "week three",
		StartDate: "2024-01-15T09:00:00Z",
		ActorID:   env.UserID,
	})
	if err != nil {
		t.Fatalf("create later: %v", err)
	}
	if later.SprintIndex != 3 {
		t.Fatalf("sprint index = %d, want 3", later.SprintIndex)
	}
}

func TestUpdateTaskRecomputesIndexOnStartDateOnly(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "move me", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	title := "renamed"
	task, err = env.Engine.UpdateTask(env.Ctx, env.OrgID, engine.TaskUpdateOptions{
		ID: task.ID, Title: &title, ActorID: env.UserID,
	})
	if err != nil {
		t.Fatalf("update title: %v", err)
	}
	if task.SprintIndex != 1 {
		t.Fatalf("index changed without start date change: %d", task.SprintIndex)
	}
	start := "2024-01-08T00:00:00Z"
	task, err = env.Engine.UpdateTask(env.Ctx, env.OrgID, engine.TaskUpdateOptions{
		ID: task.ID, StartDate: &start, ActorID: env.UserID,
	})
	if err != nil {
		t.Fatalf("update start: %v", err)
	}
	if task.SprintIndex != 2 {
		t.Fatalf("index = %d after start moved to week two, want 2", task.SprintIndex)
	}
}

func TestUpdateTaskDoneStampsCompletedAt(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "finish", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := "done"
	task, err = env.Engine.UpdateTask(env.Ctx, env.OrgID, engine.TaskUpdateOptions{
		ID: task.ID, Status: &done, ActorID: env.UserID,
	})
	if err != nil {
		t.Fatalf("to done: %v", err)
	}
	if task.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}
	todo := "todo"
	task, err = env.Engine.UpdateTask(env.Ctx, env.OrgID, engine.TaskUpdateOptions{
		ID: task.ID, Status: &todo, ActorID: env.UserID,
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if task.CompletedAt != nil {
		t.Fatalf("expected completed_at cleared on reopen")
	}
}

func TestLogSessionAccumulates(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "tracked", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range []int64{600, 300, 900} {
		_, total, err := env.Engine.LogSession(env.Ctx, env.OrgID, task.ID,
			"2024-01-03T09:00:00Z", "2024-01-03T10:00:00Z", d, env.UserID)
		if err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
		if i == 2 && total != 1800 {
			t.Fatalf("total = %d, want 1800", total)
		}
	}
	got, err := env.Engine.GetTask(env.Ctx, env.OrgID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TimeSpentSeconds != 1800 {
		t.Fatalf("persisted total = %d, want 1800", got.TimeSpentSeconds)
	}
	entries, err := env.Engine.ListTimeEntries(env.Ctx, env.OrgID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.DurationSeconds
	}
	if sum != got.TimeSpentSeconds {
		t.Fatalf("ledger sum %d != task total %d", sum, got.TimeSpentSeconds)
	}
}

func TestLogSessionRejectsNegativeDuration(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "tracked", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = env.Engine.LogSession(env.Ctx, env.OrgID, task.ID,
		"2024-01-03T09:00:00Z", "2024-01-03T08:00:00Z", -3600, env.UserID)
	if err == nil {
		t.Fatalf("expected rejection of negative duration")
	}
	got, err := env.Engine.GetTask(env.Ctx, env.OrgID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TimeSpentSeconds != 0 {
		t.Fatalf("total changed after rejected entry: %d", got.TimeSpentSeconds)
	}
	entries, _ := env.Engine.ListTimeEntries(env.Ctx, env.OrgID, task.ID)
	if len(entries) != 0 {
		t.Fatalf("rejected entry was persisted")
	}
}

func TestTaskTenancy(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "mine", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	otherOrg, err := env.Engine.CreateOrganization(env.Ctx, "Other", env.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, otherOrg.ID, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found across orgs, got %v", err)
	}
}

func TestSnapshotCountsAndSprint(t *testing.T) {
	env := newTestEnv(t)
	for _, s := range []string{"todo", "in_progress", "done"} {
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			OrgID: env.OrgID, Title: "t-" + s, Status: s, ActorID: env.UserID,
		}); err != nil {
			t.Fatal(err)
		}
	}
	snap, err := env.Engine.Snapshot(env.Ctx, env.OrgID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalTasks != 3 || snap.CompletedTasks != 1 || snap.PendingTasks != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.SprintIndex != 1 {
		t.Fatalf("sprint index = %d", snap.SprintIndex)
	}
	if snap.SprintStart != "2024-01-01T00:00:00Z" || snap.SprintEnd != "2024-01-07T00:00:00Z" {
		t.Fatalf("sprint range = %s .. %s", snap.SprintStart, snap.SprintEnd)
	}
}

func TestWeeklyTimeline(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "tracked", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Wednesday and Friday of the anchor week, plus one outside the window
	sessions := []struct {
		start, end string
		dur        int64
	}{
		{"2024-01-03T09:00:00Z", "2024-01-03T10:00:00Z", 3600},
		{"2024-01-05T09:00:00Z", "2024-01-05T09:30:00Z", 1800},
		{"2024-01-10T09:00:00Z", "2024-01-10T10:00:00Z", 3600},
	}
	for _, s := range sessions {
		if _, _, err := env.Engine.LogSession(env.Ctx, env.OrgID, task.ID, s.start, s.end, s.dur, env.UserID); err != nil {
			t.Fatal(err)
		}
	}
	tl, err := env.Engine.WeeklyTimeline(env.Ctx, env.OrgID, time.Time{})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if tl.Minutes["Wed"] != 60 || tl.Minutes["Fri"] != 30 {
		t.Fatalf("minutes = %v", tl.Minutes)
	}
	if tl.Minutes["Mon"] != 0 {
		t.Fatalf("expected zero Monday, got %d", tl.Minutes["Mon"])
	}
	if len(tl.Minutes) != 7 {
		t.Fatalf("expected all seven keys, got %d", len(tl.Minutes))
	}
}

func TestLogSessionNormalizesOffsetsToUTC(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "tracked", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 21:00 -05:00 on Dec 31 is 02:00 UTC on Monday Jan 1
	entry, _, err := env.Engine.LogSession(env.Ctx, env.OrgID, task.ID,
		"2023-12-31T21:00:00-05:00", "2023-12-31T22:00:00-05:00", 3600, env.UserID)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if entry.StartedAt != "2024-01-01T02:00:00Z" || entry.EndedAt != "2024-01-01T03:00:00Z" {
		t.Fatalf("stored entry not UTC: %s .. %s", entry.StartedAt, entry.EndedAt)
	}
	tl, err := env.Engine.WeeklyTimeline(env.Ctx, env.OrgID, time.Time{})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if tl.Minutes["Mon"] != 60 {
		t.Fatalf("Mon = %d minutes, want 60", tl.Minutes["Mon"])
	}
}

func TestInsertAPIKeyRequiresCallerTimestamp(t *testing.T) {
	env := newTestEnv(t)
	key := domain.APIKey{
		ID:      uuid.New().String(),
		UserID:  env.UserID,
		Name:    "ci",
		KeyHash: repo.HashAPIKey("raw-key"),
	}
	if err := env.Engine.Repo.InsertAPIKey(env.Ctx, nil, key); err == nil {
		t.Fatalf("expected rejection without created_at")
	}
	key.CreatedAt = env.Engine.Now().UTC().Format(time.RFC3339)
	if err := env.Engine.Repo.InsertAPIKey(env.Ctx, nil, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	keys, err := env.Engine.Repo.ListAPIKeys(env.Ctx, env.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].CreatedAt != key.CreatedAt {
		t.Fatalf("keys = %+v", keys)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		OrgID: env.OrgID, Title: "evented", ActorID: env.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := "done"
	_, _ = env.Engine.UpdateTask(env.Ctx, env.OrgID, engine.TaskUpdateOptions{ID: task.ID, Status: &done, ActorID: env.UserID})
	_, _, _ = env.Engine.LogSession(env.Ctx, env.OrgID, task.ID, "2024-01-03T09:00:00Z", "2024-01-03T10:00:00Z", 600, env.UserID)
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, env.OrgID, "", "task", task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) < 3 {
		t.Fatalf("expected create/update/log events, got %d", len(evs))
	}
}
