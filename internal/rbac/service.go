package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrRoleNotFound  = errors.New("role not found")
	ErrDuplicateName = errors.New("role name already exists")
	ErrSystemRole    = errors.New("system roles cannot be deleted")
	ErrInvalidRole   = errors.New("invalid role")
)

// RoleInput is the editable part of a role.
type RoleInput struct {
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// Service manages roles and answers permission checks.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SeedDefaults inserts the system roles that are missing. Existing roles
// keep any edits made by administrators.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, r := range DefaultRoles() {
		if _, err := s.repo.GetRole(ctx, r.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrRoleNotFound) {
			return err
		}
		role := r
		if err := s.repo.SaveRole(ctx, &role); err != nil {
			return fmt.Errorf("seed role %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Service) CreateRole(ctx context.Context, in RoleInput) (*Role, error) {
	perms, err := normalizePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	r := &Role{ID: uuid.NewString(), Name: name, Description: in.Description, Permissions: perms}
	if err := s.repo.SaveRole(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) UpdateRole(ctx context.Context, id string, in RoleInput) (*Role, error) {
	r, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := normalizePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		r.Name = name
	}
	r.Description = in.Description
	r.Permissions = perms
	if err := s.repo.SaveRole(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.repo.GetRole(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.repo.ListRoles(ctx)
}

// DeleteRole removes a custom role and unassigns it from every user.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	r, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if r.System {
		return ErrSystemRole
	}
	if err := s.repo.RemoveRoleFromUsers(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteRole(ctx, id)
}

// AssignRoles replaces the roles of a user. Every role must exist.
func (s *Service) AssignRoles(ctx context.Context, userID string, roleIDs []string) (*UserRole, error) {
	seen := map[string]bool{}
	ids := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if seen[id] {
			continue
		}
		if _, err := s.repo.GetRole(ctx, id); err != nil {
			return nil, fmt.Errorf("role %q: %w", id, err)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	ur := &UserRole{UserID: userID, RoleIDs: ids}
	if err := s.repo.SetUserRoles(ctx, ur); err != nil {
		return nil, err
	}
	return ur, nil
}

// UserRoles returns the roles assigned to a user. Dangling role ids are skipped.
func (s *Service) UserRoles(ctx context.Context, userID string) ([]*Role, error) {
	ur, err := s.repo.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*Role, 0, len(ur.RoleIDs))
	for _, id := range ur.RoleIDs {
		r, err := s.repo.GetRole(ctx, id)
		if errors.Is(err, ErrRoleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// EffectivePermissions is the union of the permissions of all user roles,
// one entry per module with actions sorted.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]Permission, error) {
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	byModule := map[string]map[string]bool{}
	for _, r := range roles {
		for _, p := range r.Permissions {
			if byModule[p.Module] == nil {
				byModule[p.Module] = map[string]bool{}
			}
			for _, a := range p.Actions {
				byModule[p.Module][a] = true
			}
		}
	}
	out := make([]Permission, 0, len(byModule))
	for m, acts := range byModule {
		p := Permission{Module: m}
		for a := range acts {
			p.Actions = append(p.Actions, a)
		}
		sort.Strings(p.Actions)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

// Can implements middleware.Authorizer.
func (s *Service) Can(ctx context.Context, userID, module, action string) (bool, error) {
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.Grants(module, action) {
			return true, nil
		}
	}
	return false, nil
}

// RoleNames returns the ids of the user's roles, for the token "roles" claim.
func (s *Service) RoleNames(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.ID)
	}
	return names, nil
}

func normalizePermissions(in []Permission) ([]Permission, error) {
	merged := map[string][]string{}
	order := []string{}
	for _, p := range in {
		if !slices.Contains(AllModules, p.Module) {
			return nil, fmt.Errorf("%w: unknown module %q", ErrInvalidRole, p.Module)
		}
		if _, ok := merged[p.Module]; !ok {
			order = append(order, p.Module)
		}
		for _, a := range p.Actions {
			a = strings.ToLower(strings.TrimSpace(a))
			if !slices.Contains(AllActions, a) {
				return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRole, a)
			}
			if !slices.Contains(merged[p.Module], a) {
				merged[p.Module] = append(merged[p.Module], a)
			}
		}
	}
	out := make([]Permission, 0, len(order))
	for _, m := range order {
		out = append(out, Permission{Module: m, Actions: merged[m]})
	}
	return out, nil
}
