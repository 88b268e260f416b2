package admission

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const limitPolicy = `
package claims

default decide = {"allow": true, "reasons": []}

decide = {"allow": false, "reasons": ["owner_at_limit"]} {
	input.existing_claims >= 3
}

decide = {"allow": false, "reasons": ["name_blocked"]} {
	input.subdomain == "forbidden-name"
}
`

func TestGuardDefaultAllow(t *testing.T) {
	ctx := context.Background()

	var nilGuard *Guard
	assert.True(t, nilGuard.Evaluate(ctx, Input{Subdomain: "my-site"}).Allow)

	empty := NewGuard("", nil)
	assert.True(t, empty.Evaluate(ctx, Input{Subdomain: "my-site"}).Allow)
}

func TestGuardEvaluatesModule(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(limitPolicy, nil)

	t.Run("admits under the limit", func(t *testing.T) {
		dec := g.Evaluate(ctx, Input{Subdomain: "my-site", OwnerID: "user_1", ExistingClaims: 2})
		assert.True(t, dec.Allow)
		assert.Empty(t, dec.Reasons)
	})

	t.Run("denies at the limit", func(t *testing.T) {
		dec := g.Evaluate(ctx, Input{Subdomain: "my-site", OwnerID: "user_1", ExistingClaims: 3})
		assert.False(t, dec.Allow)
		assert.Equal(t, []string{"owner_at_limit"}, dec.Reasons)
	})

	t.Run("denies blocked names", func(t *testing.T) {
		dec := g.Evaluate(ctx, Input{Subdomain: "forbidden-name", OwnerID: "user_1"})
		assert.False(t, dec.Allow)
		assert.Equal(t, []string{"name_blocked"}, dec.Reasons)
	})
}

func TestGuardBooleanEntrypoint(t *testing.T) {
	g := NewGuard(`
package claims

default decide = false

decide {
	input.owner_id != ""
}
`, nil)

	assert.True(t, g.Evaluate(context.Background(), Input{OwnerID: "user_1"}).Allow)
	assert.False(t, g.Evaluate(context.Background(), Input{}).Allow)
}

func TestGuardBrokenModuleDenies(t *testing.T) {
	g := NewGuard("package claims\n\ndecide { this is not rego", nil)
	dec := g.Evaluate(context.Background(), Input{Subdomain: "my-site"})
	assert.False(t, dec.Allow)
	assert.Equal(t, []string{"policy_error"}, dec.Reasons)
}

func TestLoadGuardFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.rego")
	require.NoError(t, os.WriteFile(path, []byte(limitPolicy), 0o644))

	g, err := LoadGuardFile(path, nil)
	require.NoError(t, err)
	dec := g.Evaluate(context.Background(), Input{ExistingClaims: 5})
	assert.False(t, dec.Allow)

	_, err = LoadGuardFile(filepath.Join(t.TempDir(), "absent.rego"), nil)
	require.Error(t, err)
}
