package rbac

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Role is a named permission bucket with a privilege rank. Roles are
// configuration: they are never created or mutated through the API.
type Role string

const (
	RoleSuperAdmin   Role = "SUPERADMIN"
	RoleCompanyAdmin Role = "COMPANY_ADMIN"
	RoleSupervisor   Role = "SUPERVISOR"
	RoleOperative    Role = "OPERATIVE"
	RoleViewer       Role = "VIEWER"
)

// Valid reports whether the role is one of the built-in roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleCompanyAdmin, RoleSupervisor, RoleOperative, RoleViewer:
		return true
	}
	return false
}

// RoleDefinition binds a role to its default token set and rank. Rank
// is used only for peer-protection comparisons; it is not a permission.
type RoleDefinition struct {
	Name        Role     `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Rank        int      `yaml:"rank"`
	Permissions []string `yaml:"permissions"`
}

// BuiltInRoles returns the default role definitions.
func BuiltInRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Platform Super Admin",
			Rank:        100,
			Permissions: []string{"*"},
		},
		{
			Name:        RoleCompanyAdmin,
			DisplayName: "Company Admin",
			Rank:        80,
			Permissions: []string{
				"projects.*", "tasks.*", "documents.*", "finances.*",
				"reports.*", "members.*", "tenant.*", TokenSecurityView,
			},
		},
		{
			Name:        RoleSupervisor,
			DisplayName: "Site Supervisor",
			Rank:        50,
			Permissions: []string{
				TokenProjectsView, TokenProjectsUpdate,
				"tasks.*",
				TokenDocumentsView, TokenDocumentsUpload,
				TokenReportsView,
				TokenMembersView,
				TokenTenantView,
			},
		},
		{
			Name:        RoleOperative,
			DisplayName: "Operative",
			Rank:        10,
			Permissions: []string{
				TokenProjectsView,
				TokenTasksView, TokenTasksUpdate,
				TokenDocumentsView, TokenDocumentsUpload,
				TokenTenantView,
			},
		},
		{
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Rank:        5,
			Permissions: []string{
				TokenProjectsView,
				TokenTasksView,
				TokenDocumentsView,
				TokenReportsView,
				TokenTenantView,
			},
		},
	}
}

// Registry resolves roles to their default permission sets and ranks.
// Safe for concurrent use; an overlay file may replace definitions at
// runtime via Watch.
type Registry struct {
	mu      sync.RWMutex
	defs    map[Role]RoleDefinition
	catalog *Catalog
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry builds a registry from the built-in role definitions.
func NewRegistry(catalog *Catalog) *Registry {
	r := &Registry{
		defs:    make(map[Role]RoleDefinition),
		catalog: catalog,
	}
	for _, def := range BuiltInRoles() {
		r.defs[def.Name] = def
	}
	return r
}

// Definition returns the definition for a role.
func (r *Registry) Definition(role Role) (RoleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[role]
	return def, ok
}

// Rank returns the privilege rank for a role; unknown roles rank 0 so
// they always lose peer-protection comparisons.
func (r *Registry) Rank(role Role) int {
	def, ok := r.Definition(role)
	if !ok {
		return 0
	}
	return def.Rank
}

// Outranks reports whether actor holds a strictly higher rank than
// target. Equal rank is not enough: this is the peer-protection rule.
func (r *Registry) Outranks(actor, target Role) bool {
	return r.Rank(actor) > r.Rank(target)
}

// DefaultSet returns the role's default permission set. Tokens outside
// the catalog are dropped here so unrecognized grants stay inert.
func (r *Registry) DefaultSet(role Role) *PermissionSet {
	set := NewPermissionSet()
	def, ok := r.Definition(role)
	if !ok {
		return set
	}
	for _, s := range def.Permissions {
		tok, err := ParseToken(s)
		if err != nil {
			continue
		}
		if !r.catalog.Known(tok) {
			continue
		}
		set.Add(tok)
	}
	return set
}

type overlayFile struct {
	Roles []RoleDefinition `yaml:"roles"`
}

// LoadOverlay merges role definitions from a YAML file over the
// built-ins. Only listed roles are replaced.
func (r *Registry) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read role overlay: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse role overlay: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range overlay.Roles {
		if !def.Name.Valid() {
			return fmt.Errorf("role overlay references unknown role %q", def.Name)
		}
		if def.Rank <= 0 {
			// Keep the built-in rank when the overlay only tunes permissions.
			def.Rank = 0
			if existing, ok := r.defs[def.Name]; ok {
				def.Rank = existing.Rank
			}
		}
		r.defs[def.Name] = def
	}
	return nil
}

// Watch reloads the overlay file whenever it changes on disk. The
// callback receives reload errors; a failed reload keeps the previous
// definitions.
func (r *Registry) Watch(path string, onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create overlay watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch role overlay: %w", err)
	}

	r.watcher = watcher
	r.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadOverlay(path); err != nil && onError != nil {
					onError(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the overlay watcher if one is running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}
