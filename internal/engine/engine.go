package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sprintline/internal/config"
	"sprintline/internal/domain"
	"sprintline/internal/events"
	"sprintline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotMember          = errors.New("not a member of this organization")
)

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newInviteCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = inviteCodeAlphabet[int(buf[i])%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}

// RegisterOptions are parameters for creating an account. OrgName and
// InviteCode are mutually optional; at most one is honored (OrgName wins).
type RegisterOptions struct {
	Name       string
	Email      string
	Password   string
	OrgName    string
	InviteCode string
}

// RegisterUser creates the account, optionally creates or joins an
// organization in the same transaction, and consumes any pending invites
// addressed to the email.
func (e Engine) RegisterUser(ctx context.Context, opts RegisterOptions) (domain.User, []domain.Organization, error) {
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	if opts.Name == "" || opts.Email == "" {
		return domain.User{}, nil, errors.New("name and email are required")
	}
	if len(opts.Password) < 6 {
		return domain.User{}, nil, errors.New("password must be at least 6 characters")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, opts.Email); err == nil {
		return domain.User{}, nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	u := domain.User{
		ID:           uuid.New().String(),
		Name:         opts.Name,
		Email:        opts.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, nil, fmt.Errorf("insert user: %w", err)
	}

	var orgs []domain.Organization
	switch {
	case opts.OrgName != "":
		org, err := e.createOrganizationTx(ctx, tx, opts.OrgName, u.ID)
		if err != nil {
			return domain.User{}, nil, err
		}
		orgs = append(orgs, org)
	case opts.InviteCode != "":
		org, err := e.Repo.GetOrganizationByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(opts.InviteCode)))
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.User{}, nil, errors.New("invalid invite code")
			}
			return domain.User{}, nil, err
		}
		if err := e.joinOrganizationTx(ctx, tx, org, u.ID); err != nil {
			return domain.User{}, nil, err
		}
		orgs = append(orgs, org)
	}

	// Pending invites addressed to this email become memberships.
	invites, err := e.Repo.ListInvitesForEmail(ctx, tx, u.Email)
	if err != nil {
		return domain.User{}, nil, err
	}
	for _, inv := range invites {
		org, err := e.Repo.GetOrganization(ctx, inv.OrgID)
		if err != nil {
			return domain.User{}, nil, err
		}
		already := false
		for _, o := range orgs {
			if o.ID == org.ID {
				already = true
			}
		}
		if !already {
			if err := e.joinOrganizationTx(ctx, tx, org, u.ID); err != nil {
				return domain.User{}, nil, err
			}
			orgs = append(orgs, org)
		}
		if err := e.Repo.DeleteInvite(ctx, tx, inv.OrgID, inv.Email); err != nil {
			return domain.User{}, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.User{}, nil, err
	}
	return u, orgs, nil
}

// Authenticate verifies credentials and returns the user.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CreateOrganization creates an org owned by the actor, with a fresh invite
// code. The creation instant is the org's sprint anchor and never changes.
func (e Engine) CreateOrganization(ctx context.Context, name, actorID string) (domain.Organization, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Organization{}, errors.New("organization name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()
	org, err := e.createOrganizationTx(ctx, tx, name, actorID)
	if err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

func (e Engine) createOrganizationTx(ctx context.Context, tx *sql.Tx, name, ownerID string) (domain.Organization, error) {
	code, err := newInviteCode()
	if err != nil {
		return domain.Organization{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	org := domain.Organization{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(name),
		InviteCode: code,
		OwnerID:    ownerID,
		CreatedAt:  now,
	}
	if err := e.Repo.InsertOrganization(ctx, tx, org); err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	m := domain.Membership{OrgID: org.ID, UserID: ownerID, Role: domain.RoleOwner, JoinedAt: now}
	if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
		return domain.Organization{}, fmt.Errorf("insert membership: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "org.created", org.ID, "org", org.ID, ownerID, events.EventPayload{"name": org.Name}); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

// JoinOrganization adds the actor as a member via invite code.
func (e Engine) JoinOrganization(ctx context.Context, inviteCode, actorID string) (domain.Organization, error) {
	org, err := e.Repo.GetOrganizationByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(inviteCode)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Organization{}, errors.New("invalid invite code")
		}
		return domain.Organization{}, err
	}
	if _, err := e.Repo.GetMembership(ctx, org.ID, actorID); err == nil {
		return org, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Organization{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()
	if err := e.joinOrganizationTx(ctx, tx, org, actorID); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

func (e Engine) joinOrganizationTx(ctx context.Context, tx *sql.Tx, org domain.Organization, userID string) error {
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.Membership{OrgID: org.ID, UserID: userID, Role: domain.RoleMember, JoinedAt: now}
	if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return e.Events.Append(ctx, tx, "org.joined", org.ID, "org", org.ID, userID, nil)
}

// InviteMember invites an email to the org. An existing account joins
// immediately; otherwise a pending invite is recorded and consumed at
// registration.
func (e Engine) InviteMember(ctx context.Context, orgID, email, actorID string) (joined bool, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, errors.New("email is required")
	}
	org, err := e.Repo.GetOrganization(ctx, orgID)
	if err != nil {
		return false, err
	}
	if err := e.RequireMembership(ctx, orgID, actorID); err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if _, merr := e.Repo.GetMembership(ctx, orgID, u.ID); merr == nil {
			return true, errors.New("user is already a member")
		} else if !errors.Is(merr, repo.ErrNotFound) {
			return false, merr
		}
		if err := e.joinOrganizationTx(ctx, tx, org, u.ID); err != nil {
			return false, err
		}
		joined = true
	case errors.Is(err, repo.ErrNotFound):
		inv := domain.Invite{OrgID: orgID, Email: email, CreatedAt: e.now().UTC().Format(time.RFC3339)}
		if err := e.Repo.InsertInvite(ctx, tx, inv); err != nil {
			return false, err
		}
	default:
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "member.invited", orgID, "org", orgID, actorID, events.EventPayload{"email": email, "joined": joined}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return joined, nil
}

// RequireMembership returns ErrNotMember unless the user belongs to the org.
func (e Engine) RequireMembership(ctx context.Context, orgID, userID string) error {
	_, err := e.Repo.GetMembership(ctx, orgID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotMember
	}
	return err
}

// Member pairs a membership with the user's profile for listing.
type Member struct {
	User     domain.User `json:"user"`
	Role     string      `json:"role"`
	JoinedAt string      `json:"joined_at"`
}

func (e Engine) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	ms, err := e.Repo.ListMemberships(ctx, orgID)
	if err != nil {
		return nil, err
	}
	res := make([]Member, 0, len(ms))
	for _, m := range ms {
		u, err := e.Repo.GetUser(ctx, m.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, err
		}
		res = append(res, Member{User: u, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return res, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
