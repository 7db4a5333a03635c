package token

import (
	"encoding/json"
	"fmt"
	"os"
)

// Roles holds the static role-to-permission mapping used when RBAC is
// enabled. It is built once at startup and never mutated afterwards.
type Roles struct {
	defaultRole string
	permissions map[string][]string
}

// roleConfig is the on-disk shape: {"admin": {"permissions": ["*"]}}
type roleConfig struct {
	Permissions []string `json:"permissions"`
}

// NewRoles builds a role mapping from an explicit table
func NewRoles(defaultRole string, permissions map[string][]string) *Roles {
	return &Roles{
		defaultRole: defaultRole,
		permissions: permissions,
	}
}

// ParseRoles builds a role mapping from JSON configuration
func ParseRoles(defaultRole string, data []byte) (*Roles, error) {
	var raw map[string]roleConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("roles config: %w", err)
	}
	permissions := make(map[string][]string, len(raw))
	for role, cfg := range raw {
		permissions[role] = cfg.Permissions
	}
	return NewRoles(defaultRole, permissions), nil
}

// RolesFromFile builds a role mapping from a JSON file
func RolesFromFile(defaultRole, path string) (*Roles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roles config file: %w", err)
	}
	return ParseRoles(defaultRole, data)
}

// Resolve returns role, or the default role when role is empty
func (r *Roles) Resolve(role string) string {
	if role == "" {
		return r.defaultRole
	}
	return role
}

// PermissionsFor returns the permission set configured for a role. Unknown
// roles have no permissions.
func (r *Roles) PermissionsFor(role string) []string {
	return r.permissions[role]
}
