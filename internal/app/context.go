package app

import (
	"context"
	"fmt"

	"sprintline/internal/domain"
	"sprintline/internal/repo"
)

// ResolveOrganization picks the active org for CLI commands. It prefers the
// override, then falls back to the single org the actor belongs to.
func ResolveOrganization(ctx context.Context, orgOverride, actorID string, r repo.Repo) (domain.Organization, error) {
	if orgOverride != "" {
		return r.GetOrganization(ctx, orgOverride)
	}
	orgs, err := r.ListOrganizationsForUser(ctx, actorID)
	if err != nil {
		return domain.Organization{}, err
	}
	switch len(orgs) {
	case 0:
		return domain.Organization{}, fmt.Errorf("no organization; create one with sl org create or pass --org")
	case 1:
		return orgs[0], nil
	default:
		return domain.Organization{}, fmt.Errorf("multiple organizations; specify --org")
	}
}
