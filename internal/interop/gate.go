package interop

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/xupit3r/psinterop/internal/render"
)

// DefaultAllowedBackends lists the backends CUDA interop works with
var DefaultAllowedBackends = []string{render.BackendOpenGL3GLFW}

// Gate checks that interop can run before any buffer is touched
type Gate struct {
	backend     render.Backend
	allowed     []string
	deps        []Capability
	constraints map[string]*semver.Constraints
}

// NewGate creates a gate for backend. An empty allow-list means
// DefaultAllowedBackends.
func NewGate(backend render.Backend, allowed []string, deps ...Capability) *Gate {
	if len(allowed) == 0 {
		allowed = DefaultAllowedBackends
	}
	return &Gate{
		backend:     backend,
		allowed:     append([]string(nil), allowed...),
		deps:        deps,
		constraints: make(map[string]*semver.Constraints),
	}
}

// RequireVersion constrains the version a dependency may report, e.g.
// ">= 11.0". Dependencies that report no version are not checked.
func (g *Gate) RequireVersion(dep Dependency, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint for %s: %w", dep.Name, err)
	}
	g.constraints[dep.Name] = c
	return nil
}

// Allowed returns the backend allow-list
func (g *Gate) Allowed() []string {
	return append([]string(nil), g.allowed...)
}

func (g *Gate) backendAllowed() bool {
	name := g.backend.Name()
	for _, a := range g.allowed {
		if a == name {
			return true
		}
	}
	return false
}

// CheckAvailability fails with a *BackendError if the backend is not allowed.
// Otherwise it loads each dependency and reports every missing or
// incompatible one as a *DependencyError, joined together.
func (g *Gate) CheckAvailability() error {
	if !g.backendAllowed() {
		return &BackendError{Backend: g.backend.Name(), Allowed: g.Allowed()}
	}

	var errs []error
	for _, d := range g.deps {
		if err := g.checkDependency(d.Status()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gate) checkDependency(st DependencyStatus) error {
	if !st.Available {
		e := &DependencyError{Name: st.Name, URL: st.URL, Reason: "missing", cause: st.Err}
		if st.Err != nil {
			e.Detail = st.Err.Error()
		}
		return e
	}
	if st.Err != nil {
		return &DependencyError{Name: st.Name, URL: st.URL, Reason: "incompatible",
			Detail: st.Err.Error(), cause: st.Err}
	}

	c, ok := g.constraints[st.Name]
	if !ok || st.Version == "" {
		return nil
	}
	v, err := semver.NewVersion(st.Version)
	if err != nil {
		return &DependencyError{Name: st.Name, URL: st.URL, Reason: "incompatible",
			Detail: fmt.Sprintf("unparseable version %q", st.Version), cause: err}
	}
	if !c.Check(v) {
		return &DependencyError{Name: st.Name, URL: st.URL, Reason: "incompatible",
			Detail: fmt.Sprintf("version %s does not satisfy %s", st.Version, c)}
	}
	return nil
}

// Report is a snapshot of everything CheckAvailability looks at
type Report struct {
	Backend        string             `yaml:"backend"`
	BackendAllowed bool               `yaml:"backend_allowed"`
	Allowed        []string           `yaml:"allowed_backends"`
	Dependencies   []DependencyStatus `yaml:"dependencies"`
	Problems       []string           `yaml:"problems,omitempty"`
}

// Report loads every dependency, even when the backend is rejected, and
// describes the result
func (g *Gate) Report() Report {
	r := Report{
		Backend:        g.backend.Name(),
		BackendAllowed: g.backendAllowed(),
		Allowed:        g.Allowed(),
	}
	if !r.BackendAllowed {
		r.Problems = append(r.Problems,
			(&BackendError{Backend: r.Backend, Allowed: r.Allowed}).Error())
	}
	for _, d := range g.deps {
		st := d.Status()
		r.Dependencies = append(r.Dependencies, st)
		if err := g.checkDependency(st); err != nil {
			r.Problems = append(r.Problems, err.Error())
		}
	}
	return r
}

// OK reports whether the report has no problems
func (r Report) OK() bool {
	return len(r.Problems) == 0
}
