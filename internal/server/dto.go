package server

import (
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/workload"
)

// Request payloads

type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email" format:"email"`
	Password   string `json:"password"`
	OrgName    string `json:"org_name,omitempty"`
	InviteCode string `json:"invite_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateOrgRequest struct {
	Name string `json:"name"`
}

type JoinOrgRequest struct {
	InviteCode string `json:"invite_code"`
}

type InviteMemberRequest struct {
	Email string `json:"email" format:"email"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"todo,in_progress,done"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
	Points      *int    `json:"points,omitempty" minimum:"0"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date-time"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"todo,in_progress,done"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
	Points      *int    `json:"points,omitempty" minimum:"0"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date-time"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

type LogTimeRequest struct {
	StartedAt       string `json:"started_at,omitempty" format:"date-time"`
	EndedAt         string `json:"ended_at,omitempty" format:"date-time"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  UserResponse  `json:"user"`
	Orgs  []OrgResponse `json:"orgs"`
}

type OrgResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code"`
	OwnerID    string `json:"owner_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	User     UserResponse `json:"user"`
	Role     string       `json:"role" enum:"owner,member"`
	JoinedAt string       `json:"joined_at" format:"date-time"`
}

type InviteResponse struct {
	Joined bool `json:"joined"`
}

type TaskResponse = domain.Task

type CommentResponse = domain.Comment

type TimeEntryResponse = domain.TimeLogEntry

type LogTimeResponse struct {
	Entry            domain.TimeLogEntry `json:"entry"`
	TimeSpentSeconds int64               `json:"time_spent_seconds"`
}

type AggregateResponse = workload.AssigneeAggregate

type SnapshotResponse = engine.SnapshotStats

type TimelineResponse = engine.Timeline

type SprintResponse = engine.SprintInfo

type EventResponse = domain.Event

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func orgResponse(o domain.Organization) OrgResponse {
	return OrgResponse{ID: o.ID, Name: o.Name, InviteCode: o.InviteCode, OwnerID: o.OwnerID, CreatedAt: o.CreatedAt}
}

func mapOrgs(orgs []domain.Organization) []OrgResponse {
	res := make([]OrgResponse, 0, len(orgs))
	for _, o := range orgs {
		res = append(res, orgResponse(o))
	}
	return res
}

func mapMembers(members []engine.Member) []MemberResponse {
	res := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		res = append(res, MemberResponse{User: userResponse(m.User), Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return res
}
