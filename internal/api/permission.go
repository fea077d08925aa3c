package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// AuthorizationFile is looked up in the configuration directory.
const AuthorizationFile = "authorization.yaml"

type Role string
type User string

// Permission is a "resource:action" pair, "*" matching anything.
//
// Endpoint permissions use the API resource and the action derived from the
// HTTP method (tasks:read, tasks:create, tasks:delete, drones:read).
// Command permissions use the drone id and the command name (*:shell, web01:run).
type Permission struct {
	Resource string `yaml:"resource"`
	Action   string `yaml:"action"`
}

func (p *Permission) Match(resource, action string) bool {
	resourceMatch := resource == p.Resource || p.Resource == "*"
	if !resourceMatch {
		return false
	}

	actionMatch := action == p.Action || p.Action == "*"
	return actionMatch
}

func parsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok {
		return Permission{}, fmt.Errorf("invalid permission format: %q (expected resource:action)", s)
	}
	return Permission{
		Resource: strings.TrimSpace(resource),
		Action:   strings.TrimSpace(action),
	}, nil
}

type authorizationConfig struct {
	Users map[User]struct {
		Roles []Role `yaml:"roles"`
	} `yaml:"users"`
	Roles map[Role]struct {
		Endpoints []string `yaml:"endpoints"`
		Commands  []string `yaml:"commands"`
	} `yaml:"roles"`
}

type Permissions struct {
	Endpoints []Permission
	Commands  []Permission
}

type ParsedAuthConfig struct {
	Users map[User][]Role
	Roles map[Role]Permissions
}

// Authorizer checks operator permissions loaded from authorization.yaml.
// Without that file every authenticated operator is allowed everything.
type Authorizer struct {
	config    ParsedAuthConfig
	enabled   bool
	configDir string
}

func NewAuthorizer(configDir string) *Authorizer {
	return &Authorizer{
		config: ParsedAuthConfig{
			Users: make(map[User][]Role),
			Roles: make(map[Role]Permissions),
		},
		configDir: configDir,
	}
}

func (a *Authorizer) Load() error {
	configFile := filepath.Join(a.configDir, AuthorizationFile)
	slog.Debug("loading authorization config", "file", configFile)

	data, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("no authorization config, all authenticated operators have full access", "file", configFile)
			return nil
		}
		return fmt.Errorf("failed to load authorization config: %w", err)
	}

	return a.parse(data)
}

func (a *Authorizer) parse(data []byte) error {
	rawConfig := authorizationConfig{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return fmt.Errorf("invalid authorization config file: %w", err)
	}

	parsedConfig := ParsedAuthConfig{
		Users: make(map[User][]Role),
		Roles: make(map[Role]Permissions),
	}

	for username, userConfig := range rawConfig.Users {
		parsedConfig.Users[username] = userConfig.Roles
	}

	for roleName, roleConfig := range rawConfig.Roles {
		parsedRole := Permissions{
			Endpoints: parsePermissions(roleName, "endpoint", roleConfig.Endpoints),
			Commands:  parsePermissions(roleName, "command", roleConfig.Commands),
		}
		parsedConfig.Roles[roleName] = parsedRole
	}

	a.config = parsedConfig
	a.enabled = true

	slog.Info("authorization config loaded", "users", len(parsedConfig.Users), "roles", len(parsedConfig.Roles))
	return nil
}

func parsePermissions(role Role, kind string, raw []string) []Permission {
	perms := make([]Permission, 0, len(raw))
	for _, s := range raw {
		perm, err := parsePermission(s)
		if err != nil {
			slog.Warn("invalid permission", "role", role, "kind", kind, "permission", s, "error", err)
			continue
		}
		perms = append(perms, perm)
	}
	return perms
}

func (a *Authorizer) allowed(username string, pick func(Permissions) []Permission, resource, action string) bool {
	if !a.enabled {
		return true
	}

	userRoles, ok := a.config.Users[User(username)]
	if !ok {
		slog.Debug("user not found in authorization config", "username", username)
		return false
	}

	for _, roleName := range userRoles {
		role, ok := a.config.Roles[roleName]
		if !ok {
			slog.Warn("role not found in authorization config", "role", roleName)
			continue
		}

		for _, perm := range pick(role) {
			if perm.Match(resource, action) {
				return true
			}
		}
	}

	slog.Debug("permission denied", "username", username, "resource", resource, "action", action)
	return false
}

func (a *Authorizer) canAccessEndpoint(username, resource, action string) bool {
	return a.allowed(username, func(p Permissions) []Permission { return p.Endpoints }, resource, action)
}

func (a *Authorizer) canRunCommand(username, droneID, command string) bool {
	return a.allowed(username, func(p Permissions) []Permission { return p.Commands }, droneID, command)
}

var methodActions = map[string]string{
	http.MethodGet:    "read",
	http.MethodPost:   "create",
	http.MethodDelete: "delete",
}

// handler enforces endpoint permissions: /v1/<resource>/... with the action
// derived from the HTTP method. Command permissions are checked on task creation.
func (a *Authorizer) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := userFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		resource, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/v1/"), "/")
		action, known := methodActions[r.Method]
		if resource == "" || !known {
			writeError(w, http.StatusBadRequest, "invalid endpoint")
			return
		}

		if !a.canAccessEndpoint(username, resource, action) {
			slog.Warn("insufficient permissions", "username", username, "resource", resource, "action", action)
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}
