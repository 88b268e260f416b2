package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reserved:
  - admin
  - www
preallocated:
  acme: user_9
`), 0o644))

	pol, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "www"}, pol.Reserved)
	assert.Equal(t, map[string]string{"acme": "user_9"}, pol.Preallocated)
}

func TestLoadPolicyFileErrors(t *testing.T) {
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("reserved: {not: a list}"), 0o644))
	_, err = LoadPolicyFile(bad)
	require.Error(t, err)
}

func TestPolicyMerge(t *testing.T) {
	env := Policy{
		Reserved:     []string{"admin"},
		Preallocated: map[string]string{"acme": "user_9", "keep": "user_1"},
	}
	file := Policy{
		Reserved:     []string{"www"},
		Preallocated: map[string]string{"acme": "user_override"},
	}

	merged := env.Merge(file)
	assert.Equal(t, []string{"admin", "www"}, merged.Reserved)
	assert.Equal(t, map[string]string{"acme": "user_override", "keep": "user_1"}, merged.Preallocated)

	// Merge copies; the inputs stay untouched.
	assert.Equal(t, "user_9", env.Preallocated["acme"])
}
