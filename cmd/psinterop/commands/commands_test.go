package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfig = `
interop:
  allowed_backends: [openGL3_glfw]
  min_cuda_version: ">= 11.0"
  scratch_pool_mb: 4
emulator:
  enabled: true
  backend_name: openGL3_glfw
logging:
  level: warn
  console: false
cli:
  color: false
`

// run executes a fresh root command against an emulated configuration
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "psinterop v"+Version)
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "backend openGL3_glfw")
	assert.Contains(t, out, "CUDA runtime bindings")
	assert.Contains(t, out, "12.4")
	assert.Contains(t, out, "interop available")
}

func TestCheckCommandUnsupportedBackend(t *testing.T) {
	out, err := run(t, "--backend", "openGL_mock", "check")
	require.Error(t, err)
	assert.Contains(t, out, `active backend is "openGL_mock"`)
	assert.Contains(t, out, "openGL3_glfw")
}

func TestCheckCommandYAML(t *testing.T) {
	out, err := run(t, "check", "--output", "yaml")
	require.NoError(t, err)

	var report struct {
		Backend        string   `yaml:"backend"`
		BackendAllowed bool     `yaml:"backend_allowed"`
		Allowed        []string `yaml:"allowed_backends"`
		Dependencies   []struct {
			Name      string `yaml:"name"`
			Available bool   `yaml:"available"`
			Version   string `yaml:"version"`
		} `yaml:"dependencies"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))

	assert.Equal(t, "openGL3_glfw", report.Backend)
	assert.True(t, report.BackendAllowed)
	assert.Equal(t, []string{"openGL3_glfw"}, report.Allowed)
	require.Len(t, report.Dependencies, 2)
	assert.True(t, report.Dependencies[0].Available)
	assert.Equal(t, "12.4", report.Dependencies[0].Version)
}

func TestCheckCommandBadOutput(t *testing.T) {
	_, err := run(t, "check", "--output", "json")
	assert.Error(t, err)
}

func TestPushCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"contiguous cai", []string{"--layout", "contiguous", "--protocol", "cai"}},
		{"contiguous dlpack", []string{"--layout", "contiguous", "--protocol", "dlpack"}},
		{"transposed cai", []string{"--layout", "transposed", "--rows", "3", "--cols", "5"}},
		{"transposed dlpack", []string{"--layout", "transposed", "--protocol", "dlpack"}},
		{"strided cai", []string{"--layout", "strided", "--rows", "2", "--cols", "7"}},
		{"repeated", []string{"--repeat", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"push"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "verified")
			assert.Contains(t, out, "1 mapped buffer(s)")
		})
	}
}

func TestPushCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad layout", []string{"push", "--layout", "diagonal"}},
		{"bad protocol", []string{"push", "--protocol", "numpy"}},
		{"bad shape", []string{"push", "--rows", "0"}},
		{"bad repeat", []string{"push", "--repeat", "0"}},
		{"unsupported backend", []string{"--backend", "openGL_mock", "push"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestDeviceCommand(t *testing.T) {
	out, err := run(t, "device")
	require.NoError(t, err)
	assert.Contains(t, out, "CPU emulated")
	assert.Contains(t, out, "Scratch pool")
}

func TestGenerateMatchesEveryLayout(t *testing.T) {
	assert.Equal(t, []float32{0.25, 1.25, 2.25, 3.25}, generate(2, 2))
}
