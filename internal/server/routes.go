package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"sprintline/internal/engine"
	"sprintline/internal/repo"
)

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, orgs, err := e.RegisterUser(ctx, engine.RegisterOptions{
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			Password:   input.Body.Password,
			OrgName:    input.Body.OrgName,
			InviteCode: input.Body.InviteCode,
		})
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(auth.JWTSecret, u.ID, auth.tokenTTL(), time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: userResponse(u), Orgs: mapOrgs(orgs)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(auth.JWTSecret, u.ID, auth.tokenTTL(), time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		orgs, err := e.Repo.ListOrganizationsForUser(ctx, u.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: userResponse(u), Orgs: mapOrgs(orgs)}}, nil
	})
}

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		org, err := e.CreateOrganization(ctx, input.Body.Name, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(org)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations for the current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrgResponse `json:"body"`
	}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		orgs, err := e.Repo.ListOrganizationsForUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrgResponse `json:"body"`
		}{Body: mapOrgs(orgs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-org",
		Method:      http.MethodPost,
		Path:        "/orgs/join",
		Summary:     "Join organization by invite code",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body JoinOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		org, err := e.JoinOrganization(ctx, input.Body.InviteCode, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(org)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invite-member",
		Method:      http.MethodPost,
		Path:        "/orgs/invite",
		Summary:     "Invite a member by email",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body InviteMemberRequest `json:"body"`
	}) (*struct {
		Body InviteResponse `json:"body"`
	}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		joined, err := e.InviteMember(ctx, orgID, input.Body.Email, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InviteResponse `json:"body"`
		}{Body: InviteResponse{Joined: joined}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/orgs/members",
		Summary:     "List organization members",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		members, err := e.ListMembers(ctx, orgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: mapMembers(members)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		opts := engine.TaskCreateOptions{
			OrgID:   orgID,
			Title:   input.Body.Title,
			ActorID: userID,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		if input.Body.Points != nil {
			opts.Points = *input.Body.Points
		}
		if input.Body.AssigneeID != nil {
			opts.AssigneeID = *input.Body.AssigneeID
		}
		if input.Body.StartDate != nil {
			opts.StartDate = *input.Body.StartDate
		}
		if input.Body.DueDate != nil {
			opts.DueDate = *input.Body.DueDate
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:"todo,in_progress,done,"`
		Priority    string `query:"priority" enum:"low,medium,high,"`
		AssigneeID  string `query:"assignee_id"`
		SprintIndex int    `query:"sprint" minimum:"0"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		filter := repo.TaskFilters{
			OrgID:           orgID,
			Status:          input.Status,
			Priority:        input.Priority,
			AssigneeID:      input.AssigneeID,
			SprintIndex:     input.SprintIndex,
			HasSprintIndex:  input.SprintIndex > 0,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		}
		tasks, err := e.ListTasks(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(tasks) > limit {
			resp.NextCursor = composeCursor(tasks[limit].CreatedAt, tasks[limit].ID)
			tasks = tasks[:limit]
		}
		if len(tasks) > 0 {
			resp.Items = tasks
		}
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/me",
		Summary:     "List tasks assigned to the current user",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		tasks, err := e.ListTasks(ctx, repo.TaskFilters{OrgID: orgID, AssigneeID: userID})
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []TaskResponse{}
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		t, err := e.GetTask(ctx, orgID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		t, err := e.UpdateTask(ctx, orgID, engine.TaskUpdateOptions{
			ID:          input.TaskID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			Points:      input.Body.Points,
			Assign:      input.Body.AssigneeID,
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		if err := e.DeleteTask(ctx, orgID, input.TaskID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   AddCommentRequest `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		c, err := e.AddComment(ctx, orgID, input.TaskID, input.Body.Text, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/comments",
		Summary:     "List task comments",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []CommentResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		comments, err := e.ListComments(ctx, orgID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if comments == nil {
			comments = []CommentResponse{}
		}
		return &struct {
			Body []CommentResponse `json:"body"`
		}{Body: comments}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-time",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/time",
		Summary:       "Log a work session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   LogTimeRequest `json:"body"`
	}) (*struct {
		Body LogTimeResponse `json:"body"`
	}, error) {
		userID, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		entry, total, err := e.LogSession(ctx, orgID, input.TaskID,
			input.Body.StartedAt, input.Body.EndedAt, input.Body.DurationSeconds, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LogTimeResponse `json:"body"`
		}{Body: LogTimeResponse{Entry: entry, TimeSpentSeconds: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-time",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/time",
		Summary:     "List a task's time entries",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []TimeEntryResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		entries, err := e.ListTimeEntries(ctx, orgID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []TimeEntryResponse{}
		}
		return &struct {
			Body []TimeEntryResponse `json:"body"`
		}{Body: entries}, nil
	})
}

func registerAnalytics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analytics-stats",
		Method:      http.MethodGet,
		Path:        "/analytics/stats",
		Summary:     "Snapshot counters and current sprint",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SnapshotResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		snap, err := e.Snapshot(ctx, orgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SnapshotResponse `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-distribution",
		Method:      http.MethodGet,
		Path:        "/analytics/distribution",
		Summary:     "Workload by assignee",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AggregateResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		dist, err := e.Distribution(ctx, orgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AggregateResponse `json:"body"`
		}{Body: dist}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-performance",
		Method:      http.MethodGet,
		Path:        "/analytics/performance",
		Summary:     "Completed work by assignee",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AggregateResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		perf, err := e.Performance(ctx, orgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AggregateResponse `json:"body"`
		}{Body: perf}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-timeline",
		Method:      http.MethodGet,
		Path:        "/analytics/timeline",
		Summary:     "Per-weekday logged minutes for a week",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Week string `query:"week" doc:"Any instant inside the wanted week (RFC3339); defaults to now"`
	}) (*struct {
		Body TimelineResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		var week time.Time
		if strings.TrimSpace(input.Week) != "" {
			var err error
			week, err = time.Parse(time.RFC3339, input.Week)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid week", map[string]any{"week": input.Week})
			}
		}
		tl, err := e.WeeklyTimeline(ctx, orgID, week)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimelineResponse `json:"body"`
		}{Body: tl}, nil
	})
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "current-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/current",
		Summary:     "Sprint in effect now",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SprintResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		info, err := e.CurrentSprint(ctx, orgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SprintResponse `json:"body"`
		}{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{index}",
		Summary:     "Sprint range by index",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Index int `path:"index" minimum:"1"`
	}) (*struct {
		Body SprintResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		info, err := e.SprintByIndex(ctx, orgID, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SprintResponse `json:"body"`
		}{Body: info}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest org events",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Before int64  `query:"before" doc:"Only events with id below this cursor" minimum:"0"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		_, orgID, herr := requireOrgScope(ctx, e)
		if herr != nil {
			return nil, herr
		}
		var evs []EventResponse
		var err error
		if input.Before > 0 {
			evs, err = e.Repo.LatestEventsFrom(ctx, normalizeLimit(input.Limit), input.Before, orgID, input.Type, "", "")
		} else {
			evs, err = e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), orgID, input.Type, "", "")
		}
		if err != nil {
			return nil, handleError(err)
		}
		if evs == nil {
			evs = []EventResponse{}
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: evs}, nil
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func parseCompositeCursor(cursor string) (createdAt, id string, err error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", huma.Error400BadRequest("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}
