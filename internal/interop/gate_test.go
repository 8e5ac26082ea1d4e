package interop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/render"
)

type namedBackend string

func (n namedBackend) Name() string { return string(n) }

func available(dep Dependency, version string) *Loader[string] {
	l := NewLoader(dep, func() (string, error) { return "ok", nil })
	if version != "" {
		l.WithVersion(func(string) (string, error) { return version, nil })
	}
	return l
}

func missing(dep Dependency) *Loader[string] {
	return NewLoader(dep, func() (string, error) { return "", errors.New("library not found") })
}

func TestGateRejectsUnsupportedBackend(t *testing.T) {
	g := NewGate(namedBackend(render.BackendOpenGLMock), nil,
		available(ComputeRuntime, "12.4"), available(DeviceArrayLibrary, ""))

	err := g.CheckAvailability()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnsupported)
	assert.NotErrorIs(t, err, ErrDependencyMissing)
	assert.Contains(t, err.Error(), `"openGL_mock"`)
	assert.Contains(t, err.Error(), "[openGL3_glfw]")

	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, []string{render.BackendOpenGL3GLFW}, berr.Allowed)
}

func TestGatePassesWithEverythingAvailable(t *testing.T) {
	g := NewGate(namedBackend(render.BackendOpenGL3GLFW), nil,
		available(ComputeRuntime, "12.4"), available(DeviceArrayLibrary, ""))
	require.NoError(t, g.RequireVersion(ComputeRuntime, ">= 11.0"))
	assert.NoError(t, g.CheckAvailability())
	assert.True(t, g.Report().OK())
}

func TestGateCustomAllowList(t *testing.T) {
	g := NewGate(namedBackend(render.BackendOpenGL3EGL),
		[]string{render.BackendOpenGL3GLFW, render.BackendOpenGL3EGL})
	assert.NoError(t, g.CheckAvailability())
}

func TestGateReportsEveryMissingDependency(t *testing.T) {
	g := NewGate(namedBackend(render.BackendOpenGL3GLFW), nil,
		missing(ComputeRuntime), missing(DeviceArrayLibrary))

	err := g.CheckAvailability()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyMissing)
	assert.Contains(t, err.Error(), ComputeRuntime.Name)
	assert.Contains(t, err.Error(), ComputeRuntime.URL)
	assert.Contains(t, err.Error(), DeviceArrayLibrary.Name)
	assert.Contains(t, err.Error(), DeviceArrayLibrary.URL)
	assert.Contains(t, err.Error(), "library not found")

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	require.Len(t, joined.Unwrap(), 2)
	for _, e := range joined.Unwrap() {
		var derr *DependencyError
		require.True(t, errors.As(e, &derr))
		assert.Equal(t, "missing", derr.Reason)
	}
}

func TestGateVersionConstraint(t *testing.T) {
	g := NewGate(namedBackend(render.BackendOpenGL3GLFW), nil, available(ComputeRuntime, "10.2"))
	require.NoError(t, g.RequireVersion(ComputeRuntime, ">= 11.0"))

	err := g.CheckAvailability()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyMissing)

	var derr *DependencyError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "incompatible", derr.Reason)
	assert.Contains(t, derr.Detail, "10.2")

	assert.Error(t, g.RequireVersion(ComputeRuntime, "not a constraint"))
}

func TestGateVersionQueryFailure(t *testing.T) {
	l := NewLoader(ComputeRuntime, func() (string, error) { return "ok", nil }).
		WithVersion(func(string) (string, error) { return "", errors.New("driver too old") })
	g := NewGate(namedBackend(render.BackendOpenGL3GLFW), nil, l)

	err := g.CheckAvailability()
	var derr *DependencyError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "incompatible", derr.Reason)
}

func TestLoaderIsLazyAndRunsOnce(t *testing.T) {
	calls := 0
	l := NewLoader(DeviceArrayLibrary, func() (int, error) {
		calls++
		return 42, nil
	})
	g := NewGate(namedBackend(render.BackendOpenGLMock), nil, l)

	assert.Zero(t, calls, "nothing is loaded at construction")
	require.Error(t, g.CheckAvailability())
	assert.Zero(t, calls, "a rejected backend stops before loading dependencies")

	v, err := l.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	_, _ = l.Get()
	assert.True(t, l.Status().Probed)
	assert.Equal(t, 1, calls)
}

func TestRuntimeLoaderReportsEmulatorVersion(t *testing.T) {
	e := newEnv(t)
	e.emu.SetVersion(11080)
	l := RuntimeLoader(func() (cudart.Runtime, error) { return e.emu, nil })

	st := l.Status()
	assert.True(t, st.Available)
	assert.Equal(t, "11.8", st.Version)
}

func TestNativeLoadersWithoutCUDA(t *testing.T) {
	if _, err := cudart.Load(); err == nil {
		t.Skip("native CUDA runtime available")
	}
	g := NewGate(namedBackend(render.BackendOpenGL3GLFW), nil, NativeRuntimeLoader())
	err := g.CheckAvailability()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyMissing)
	assert.ErrorIs(t, err, cudart.ErrNotAvailable)
}

func TestGateReport(t *testing.T) {
	g := NewGate(namedBackend(render.BackendOpenGLMock), nil,
		available(ComputeRuntime, "12.4"), missing(DeviceArrayLibrary))

	r := g.Report()
	assert.False(t, r.OK())
	assert.False(t, r.BackendAllowed)
	assert.Equal(t, "openGL_mock", r.Backend)
	require.Len(t, r.Dependencies, 2)
	assert.True(t, r.Dependencies[0].Available)
	assert.Equal(t, "12.4", r.Dependencies[0].Version)
	assert.False(t, r.Dependencies[1].Available)
	assert.Len(t, r.Problems, 2)
}
