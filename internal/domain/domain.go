package domain

type Organization struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code"`
	OwnerID    string `json:"owner_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Membership struct {
	OrgID    string `json:"org_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role" enum:"owner,member"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

// Invite is a pending invitation for an email address with no account yet.
type Invite struct {
	OrgID     string `json:"org_id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID               string  `json:"id"`
	OrgID            string  `json:"org_id"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Status           string  `json:"status" enum:"todo,in_progress,done"`
	Priority         string  `json:"priority" enum:"low,medium,high"`
	Points           int     `json:"points"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	CreatedBy        string  `json:"created_by"`
	StartDate        string  `json:"start_date" format:"date-time"`
	DueDate          *string `json:"due_date,omitempty" format:"date-time"`
	SprintIndex      int     `json:"sprint_index"`
	TimeSpentSeconds int64   `json:"time_spent_seconds"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
	CompletedAt      *string `json:"completed_at,omitempty" format:"date-time"`
}

// TimeLogEntry is one immutable recorded work session. Entries are
// append-only; nothing in the system mutates or deletes them.
type TimeLogEntry struct {
	ID              string `json:"id"`
	TaskID          string `json:"task_id"`
	UserID          string `json:"user_id"`
	StartedAt       string `json:"started_at" format:"date-time"`
	EndedAt         string `json:"ended_at" format:"date-time"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)
