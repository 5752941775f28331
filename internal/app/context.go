// Package app holds small helpers shared by the CLI entrypoints.
package app

import (
	"context"
	"fmt"
	"strings"

	"siteline/internal/domain"
	"siteline/internal/repo"
)

// ResolveProject picks the project a command operates on. An explicit id wins;
// otherwise a workspace with exactly one project selects it implicitly.
func ResolveProject(ctx context.Context, r repo.Repo, explicit string) (domain.Project, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return r.GetProject(ctx, id)
	}
	items, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	switch len(items) {
	case 0:
		return domain.Project{}, fmt.Errorf("no projects in workspace; create one with 'sl project create'")
	case 1:
		return items[0], nil
	default:
		return domain.Project{}, fmt.Errorf("multiple projects in workspace; pick one with --project")
	}
}
