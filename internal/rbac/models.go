// Package rbac holds the role and permission matrix of the back office:
// which modules a role may touch and with which actions.
package rbac

import "time"

// Modules guarded by permissions.
const (
	ModuleClients       = "clients"
	ModuleStatements    = "statements"
	ModuleEstimations   = "estimations"
	ModuleProspects     = "prospects"
	ModuleTelemarketing = "telemarketing"
	ModuleCallLogs      = "call_logs"
	ModuleRoles         = "roles"
	ModuleUsers         = "users"
	ModuleSettings      = "settings"
)

// Actions a permission may grant.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
)

var (
	AllModules = []string{
		ModuleClients, ModuleStatements, ModuleEstimations, ModuleProspects,
		ModuleTelemarketing, ModuleCallLogs, ModuleRoles, ModuleUsers, ModuleSettings,
	}
	AllActions = []string{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionExport}
)

// Permission grants Actions on one Module.
type Permission struct {
	Module  string   `json:"module" bson:"module"`
	Actions []string `json:"actions" bson:"actions"`
}

// Role is a named set of permissions. System roles are seeded and cannot be deleted.
type Role struct {
	ID          string       `json:"id" bson:"_id"`
	Name        string       `json:"name" bson:"name"`
	Description string       `json:"description,omitempty" bson:"description,omitempty"`
	Permissions []Permission `json:"permissions" bson:"permissions"`
	System      bool         `json:"system" bson:"system"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// UserRole links a user to the roles assigned to them.
type UserRole struct {
	UserID    string    `json:"userId" bson:"_id"`
	RoleIDs   []string  `json:"roleIds" bson:"roleIds"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Grants reports whether the role allows action on module.
func (r *Role) Grants(module, action string) bool {
	for _, p := range r.Permissions {
		if p.Module != module {
			continue
		}
		for _, a := range p.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}

func full(module string) Permission {
	return Permission{Module: module, Actions: append([]string(nil), AllActions...)}
}

// DefaultRoles returns the seeded system roles.
func DefaultRoles() []Role {
	admin := Role{ID: "admin", Name: "Admin", Description: "Full access", System: true}
	for _, m := range AllModules {
		admin.Permissions = append(admin.Permissions, full(m))
	}
	supervisor := Role{
		ID: "supervisor", Name: "Supervisor", Description: "Runs the telemarketing floor", System: true,
		Permissions: []Permission{
			full(ModuleClients), full(ModuleStatements), full(ModuleEstimations),
			full(ModuleProspects), full(ModuleTelemarketing), full(ModuleCallLogs),
			{Module: ModuleSettings, Actions: []string{ActionRead, ActionUpdate}},
			{Module: ModuleUsers, Actions: []string{ActionRead}},
		},
	}
	telemarketer := Role{
		ID: "telemarketer", Name: "Telemarketer", Description: "Works the call queue", System: true,
		Permissions: []Permission{
			{Module: ModuleProspects, Actions: []string{ActionRead, ActionUpdate}},
			{Module: ModuleTelemarketing, Actions: append([]string(nil), AllActions...)},
			{Module: ModuleCallLogs, Actions: []string{ActionRead}},
			{Module: ModuleSettings, Actions: []string{ActionRead}},
		},
	}
	return []Role{admin, supervisor, telemarketer}
}
