package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDuplicateRole     = errors.New("permission: duplicate role")
	ErrUnknownRole       = errors.New("permission: unknown role")
	ErrUnknownPermission = errors.New("permission: unknown permission")
	ErrInheritanceCycle  = errors.New("permission: inheritance cycle")
)

// RoleDef declares a role: its own permissions and the roles it inherits.
type RoleDef struct {
	Name        string
	Level       int
	Permissions []string
	Inherits    []string
}

// Category groups permissions for display.
type Category struct {
	Name        string
	Permissions []string
}

// Route requires any one of AnyOf.
type Route struct {
	Path  string
	AnyOf []string
}

// MenuItem is shown to roles holding Permission.
type MenuItem struct {
	ID         string
	Label      string
	Route      string
	Permission string
}

// Table is the static input of NewRoleRegistry. Assignments maps an actor
// role to the roles it may assign.
type Table struct {
	Categories  []Category
	Roles       []RoleDef
	Routes      []Route
	Menu        []MenuItem
	Assignments map[string][]string
}

type resolvedRole struct {
	def   RoleDef
	mask  Mask
	perms []string
}

type menuEntry struct {
	item MenuItem
	bit  int
}

// RoleRegistry answers permission questions for named roles. It is
// immutable after NewRoleRegistry and safe for concurrent use.
type RoleRegistry struct {
	registry   *Registry
	categories []Category
	roles      map[string]*resolvedRole
	order      []string
	routes     map[string]Mask
	menu       []menuEntry
	assign     map[string]map[string]struct{}
}

// NewRoleRegistry validates t and precomputes every role's effective
// permission set. It fails on unknown references and inheritance cycles.
func NewRoleRegistry(t Table) (*RoleRegistry, error) {
	reg := NewRegistry()
	for _, c := range t.Categories {
		for _, p := range c.Permissions {
			if _, err := reg.Register(p); err != nil {
				return nil, fmt.Errorf("category %s: %w", c.Name, err)
			}
		}
	}

	defs := make(map[string]RoleDef, len(t.Roles))
	order := make([]string, 0, len(t.Roles))
	for _, d := range t.Roles {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrUnknownRole)
		}
		if _, dup := defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, d.Name)
		}
		defs[d.Name] = d
		order = append(order, d.Name)
	}

	for _, d := range t.Roles {
		if _, unknown := reg.MaskOf(d.Permissions...); len(unknown) > 0 {
			return nil, fmt.Errorf("%w: role %s references %s", ErrUnknownPermission, d.Name, strings.Join(unknown, ", "))
		}
		for _, parent := range d.Inherits {
			if _, ok := defs[parent]; !ok {
				return nil, fmt.Errorf("%w: role %s inherits %s", ErrUnknownRole, d.Name, parent)
			}
		}
	}

	if cycle := findCycle(order, defs); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrInheritanceCycle, strings.Join(cycle, " -> "))
	}

	rr := &RoleRegistry{
		registry:   reg,
		categories: t.Categories,
		roles:      make(map[string]*resolvedRole, len(defs)),
		order:      order,
		routes:     make(map[string]Mask, len(t.Routes)),
		assign:     make(map[string]map[string]struct{}, len(t.Assignments)),
	}

	memo := make(map[string]Mask, len(defs))
	for _, name := range order {
		m := closure(name, defs, reg, memo)
		perms := reg.Names(m)
		sort.Strings(perms)
		rr.roles[name] = &resolvedRole{def: defs[name], mask: m, perms: perms}
	}

	for _, route := range t.Routes {
		m, unknown := reg.MaskOf(route.AnyOf...)
		if len(unknown) > 0 {
			return nil, fmt.Errorf("%w: route %s references %s", ErrUnknownPermission, route.Path, strings.Join(unknown, ", "))
		}
		rr.routes[normalizeRoute(route.Path)] = m
	}

	for _, item := range t.Menu {
		bit, ok := reg.Bit(item.Permission)
		if !ok {
			return nil, fmt.Errorf("%w: menu item %s references %s", ErrUnknownPermission, item.ID, item.Permission)
		}
		rr.menu = append(rr.menu, menuEntry{item: item, bit: bit})
	}

	for actor, targets := range t.Assignments {
		if _, ok := defs[actor]; !ok {
			return nil, fmt.Errorf("%w: assignment actor %s", ErrUnknownRole, actor)
		}
		set := make(map[string]struct{}, len(targets))
		for _, target := range targets {
			if _, ok := defs[target]; !ok {
				return nil, fmt.Errorf("%w: assignment target %s", ErrUnknownRole, target)
			}
			set[target] = struct{}{}
		}
		rr.assign[actor] = set
	}

	reg.Freeze()
	return rr, nil
}

func closure(name string, defs map[string]RoleDef, reg *Registry, memo map[string]Mask) Mask {
	if m, ok := memo[name]; ok {
		return m
	}
	d := defs[name]
	m, _ := reg.MaskOf(d.Permissions...)
	for _, parent := range d.Inherits {
		m.Union(closure(parent, defs, reg, memo))
	}
	memo[name] = m
	return m
}

// findCycle returns the first inheritance cycle found, as a path that
// starts and ends with the same role, or nil.
func findCycle(order []string, defs map[string]RoleDef) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(defs))
	var stack []string

	var visit func(string) []string
	visit = func(name string) []string {
		state[name] = visiting
		stack = append(stack, name)
		for _, parent := range defs[name].Inherits {
			switch state[parent] {
			case visiting:
				for i, n := range stack {
					if n == parent {
						return append(append([]string(nil), stack[i:]...), parent)
					}
				}
			case unvisited:
				if c := visit(parent); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range order {
		if state[name] == unvisited {
			if c := visit(name); c != nil {
				return c
			}
		}
	}
	return nil
}

func normalizeRoute(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// EffectivePermissions returns the role's declared and inherited
// permissions, deduplicated and sorted. Unknown roles yield nil.
func (r *RoleRegistry) EffectivePermissions(role string) []string {
	rr, ok := r.roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), rr.perms...)
}

// Mask returns the resolved mask of role.
func (r *RoleRegistry) Mask(role string) (Mask, bool) {
	rr, ok := r.roles[role]
	if !ok {
		return Mask{}, false
	}
	return rr.mask, true
}

// HasPermission reports whether role holds perm directly or by inheritance.
func (r *RoleRegistry) HasPermission(role, perm string) bool {
	rr, ok := r.roles[role]
	if !ok {
		return false
	}
	bit, ok := r.registry.Bit(perm)
	return ok && rr.mask.Has(bit)
}

// HasAny reports whether role holds at least one of perms. It is false for
// an empty list.
func (r *RoleRegistry) HasAny(role string, perms ...string) bool {
	rr, ok := r.roles[role]
	if !ok {
		return false
	}
	m, _ := r.registry.MaskOf(perms...)
	return rr.mask.Intersects(m)
}

// HasAll reports whether role holds every one of perms. Unknown permissions
// are never held; an empty list is trivially held by a known role.
func (r *RoleRegistry) HasAll(role string, perms ...string) bool {
	rr, ok := r.roles[role]
	if !ok {
		return false
	}
	m, unknown := r.registry.MaskOf(perms...)
	return len(unknown) == 0 && rr.mask.Contains(m)
}

// CanAccessRoute applies the route table as an any-of check. Routes that
// are not in the table are allowed.
func (r *RoleRegistry) CanAccessRoute(role, route string) bool {
	required, known := r.routes[normalizeRoute(route)]
	if !known || required.IsZero() {
		return true
	}
	rr, ok := r.roles[role]
	if !ok {
		return false
	}
	return rr.mask.Intersects(required)
}

// MenuFor returns the menu items visible to role, in table order.
func (r *RoleRegistry) MenuFor(role string) []MenuItem {
	rr, ok := r.roles[role]
	if !ok {
		return nil
	}
	var out []MenuItem
	for _, e := range r.menu {
		if rr.mask.Has(e.bit) {
			out = append(out, e.item)
		}
	}
	return out
}

// Level returns the numeric level of role.
func (r *RoleRegistry) Level(role string) (int, bool) {
	rr, ok := r.roles[role]
	if !ok {
		return 0, false
	}
	return rr.def.Level, true
}

// AssignableRoles lists every role whose level does not exceed the actor's,
// highest level first.
func (r *RoleRegistry) AssignableRoles(actor string) []string {
	level, ok := r.Level(actor)
	if !ok {
		return nil
	}
	var out []string
	for _, name := range r.order {
		if r.roles[name].def.Level <= level {
			out = append(out, name)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.roles[out[i]].def.Level > r.roles[out[j]].def.Level
	})
	return out
}

// CanAssignRole applies the explicit assignment table. It is stricter than
// AssignableRoles: an actor absent from the table may assign nothing.
func (r *RoleRegistry) CanAssignRole(actor, target string) bool {
	set, ok := r.assign[actor]
	if !ok {
		return false
	}
	_, ok = set[target]
	return ok
}

// Roles returns role names in declaration order.
func (r *RoleRegistry) Roles() []string {
	return append([]string(nil), r.order...)
}

// Categories returns the permission categories as declared.
func (r *RoleRegistry) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

// Permissions returns the number of registered permissions.
func (r *RoleRegistry) Permissions() int {
	return r.registry.Count()
}
