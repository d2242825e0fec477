// Package graph keeps the clock domains of one build and the reset
// dependencies between them.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sarchlab/crg/clock"
)

var (
	// ErrDuplicateDomain is returned when a domain name is added twice.
	ErrDuplicateDomain = errors.New("graph: duplicate domain")

	// ErrUnknownDomain is returned when an edge names a missing domain.
	ErrUnknownDomain = errors.New("graph: unknown domain")

	// ErrCyclicDependency is wrapped by every CycleError.
	ErrCyclicDependency = errors.New("graph: cyclic dependency")

	// ErrResetLessDependency is returned when a domain would wait on a
	// domain that has no reset to release.
	ErrResetLessDependency = errors.New("graph: dependency on reset-less domain")
)

// CycleError reports the dependency path a rejected edge would close.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

// Unwrap makes errors.Is(err, ErrCyclicDependency) hold.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// Config is the per-build configuration of a graph.
type Config struct {
	// Name identifies the build, usually the board name.
	Name string
}

// Domain is a node of the graph: a clock plus the reset released on it.
type Domain struct {
	Name  string
	Clock *clock.Output

	// ResetLess domains have no reset of their own (fast SERDES clocks).
	ResetLess bool

	// Calibration marks the reference domain of a delay calibration
	// controller.
	Calibration bool

	// Parent is the domain whose clock this domain divides. It orders the
	// domains like a dependency but does not wait for the parent's reset.
	Parent string

	deps map[string]struct{}
}

// Graph is a DAG of clock domains. An edge domain -> upstream means the
// domain cannot leave reset before upstream has.
type Graph struct {
	cfg     Config
	domains map[string]*Domain
}

// New creates an empty graph.
func New(cfg Config) *Graph {
	return &Graph{
		cfg:     cfg,
		domains: make(map[string]*Domain),
	}
}

// Config returns the configuration the graph was created with.
func (g *Graph) Config() Config {
	return g.cfg
}

// AddDomain adds a domain clocked by source.
func (g *Graph) AddDomain(name string, source *clock.Output) (*Domain, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownDomain)
	}

	if _, found := g.domains[name]; found {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDomain, name)
	}

	d := &Domain{
		Name:  name,
		Clock: source,
		deps:  make(map[string]struct{}),
	}
	g.domains[name] = d

	return d, nil
}

// Domain looks up a domain by name.
func (g *Graph) Domain(name string) (*Domain, error) {
	d, found := g.domains[name]
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}

	return d, nil
}

// Names returns every domain name, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.domains))
	for name := range g.domains {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Len returns the number of domains.
func (g *Graph) Len() int {
	return len(g.domains)
}

// SetResetLess marks a domain as having no reset. A domain that others
// already depend on cannot become reset-less.
func (g *Graph) SetResetLess(name string) error {
	d, err := g.Domain(name)
	if err != nil {
		return err
	}

	if users := g.Dependents(name); len(users) > 0 {
		return fmt.Errorf("%w: %q is needed by %s",
			ErrResetLessDependency, name, strings.Join(users, ", "))
	}

	if len(d.deps) > 0 {
		return fmt.Errorf("%w: %q already has dependencies",
			ErrResetLessDependency, name)
	}

	d.ResetLess = true

	return nil
}

// MarkCalibration marks a domain as the reference domain of a delay
// calibration controller.
func (g *Graph) MarkCalibration(name string) error {
	d, err := g.Domain(name)
	if err != nil {
		return err
	}

	if d.ResetLess {
		return fmt.Errorf("%w: calibration domain %q", ErrResetLessDependency, name)
	}

	d.Calibration = true

	return nil
}

// AddDependency records that domain waits for upstream. Adding an edge that
// already exists is a no-op. An edge closing a cycle is rejected with a
// *CycleError and the graph is left as it was.
func (g *Graph) AddDependency(domain, upstream string) error {
	d, err := g.Domain(domain)
	if err != nil {
		return err
	}

	u, err := g.Domain(upstream)
	if err != nil {
		return err
	}

	if d.ResetLess || u.ResetLess {
		return fmt.Errorf("%w: %q -> %q", ErrResetLessDependency, domain, upstream)
	}

	if _, found := d.deps[upstream]; found {
		return nil
	}

	if path := g.findPath(upstream, domain); path != nil {
		return &CycleError{Path: append([]string{domain}, path...)}
	}

	d.deps[upstream] = struct{}{}

	return nil
}

// SetParent records that domain is clocked by a divided copy of parent's
// clock. Reset-less domains may take part. An edge closing a cycle is
// rejected with a *CycleError and the graph is left as it was.
func (g *Graph) SetParent(domain, parent string) error {
	d, err := g.Domain(domain)
	if err != nil {
		return err
	}

	if _, err := g.Domain(parent); err != nil {
		return err
	}

	if d.Parent == parent {
		return nil
	}

	if d.Parent != "" {
		return fmt.Errorf("%w: %q is already clocked by %q",
			ErrDuplicateDomain, domain, d.Parent)
	}

	if path := g.findPath(parent, domain); path != nil {
		return &CycleError{Path: append([]string{domain}, path...)}
	}

	d.Parent = parent

	return nil
}

// upstream returns the reset dependencies and the clock parent of name,
// sorted.
func (g *Graph) upstream(name string) []string {
	deps := g.Dependencies(name)

	d, found := g.domains[name]
	if !found || d.Parent == "" {
		return deps
	}

	if _, isDep := d.deps[d.Parent]; !isDep {
		deps = append(deps, d.Parent)
		sort.Strings(deps)
	}

	return deps
}

// downstream returns the domains that name is upstream of, sorted.
func (g *Graph) downstream(name string) []string {
	users := g.Dependents(name)

	for _, d := range g.domains {
		if d.Parent != name {
			continue
		}

		if _, isDep := d.deps[name]; !isDep {
			users = append(users, d.Name)
		}
	}

	sort.Strings(users)

	return users
}

// findPath searches the dependencies and clock parents of from, depth
// first, for to. It returns the path from -> ... -> to, or nil.
func (g *Graph) findPath(from, to string) []string {
	visited := make(map[string]bool)

	var dfs func(name string) []string
	dfs = func(name string) []string {
		if name == to {
			return []string{name}
		}

		if visited[name] {
			return nil
		}

		visited[name] = true

		for _, dep := range g.upstream(name) {
			if rest := dfs(dep); rest != nil {
				return append([]string{name}, rest...)
			}
		}

		return nil
	}

	return dfs(from)
}

// Dependencies returns the direct upstream domains of name, sorted.
func (g *Graph) Dependencies(name string) []string {
	d, found := g.domains[name]
	if !found {
		return nil
	}

	deps := make([]string, 0, len(d.deps))
	for dep := range d.deps {
		deps = append(deps, dep)
	}

	sort.Strings(deps)

	return deps
}

// Dependents returns the domains that directly wait for name, sorted.
func (g *Graph) Dependents(name string) []string {
	users := []string{}

	for _, d := range g.domains {
		if _, found := d.deps[name]; found {
			users = append(users, d.Name)
		}
	}

	sort.Strings(users)

	return users
}

// TransitiveDependencies returns every domain name must wait for, sorted.
func (g *Graph) TransitiveDependencies(name string) []string {
	seen := make(map[string]bool)

	var walk func(n string)
	walk = func(n string) {
		for _, dep := range g.Dependencies(n) {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}

	walk(name)

	all := make([]string, 0, len(seen))
	for dep := range seen {
		all = append(all, dep)
	}

	sort.Strings(all)

	return all
}

// TopologicalOrder lists every domain after all of its dependencies and
// after the domain it derives its clock from. Among
// domains that are ready at the same time the lexicographically smallest
// name comes first, so the order only depends on the graph's content.
func (g *Graph) TopologicalOrder() []string {
	pending := make(map[string]int, len(g.domains))
	ready := []string{}

	for name := range g.domains {
		pending[name] = len(g.upstream(name))
		if pending[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.domains))

	for len(ready) > 0 {
		sort.Strings(ready)

		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, user := range g.downstream(next) {
			pending[user]--
			if pending[user] == 0 {
				ready = append(ready, user)
			}
		}
	}

	return order
}
