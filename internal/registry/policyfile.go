// internal/registry/policyfile.go
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicyFile reads a reservation policy from YAML:
//
//	reserved:
//	  - admin
//	  - www
//	preallocated:
//	  acme: user_9
//
// A configured path that cannot be read or parsed is an error; the caller
// decides whether that is fatal.
func LoadPolicyFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return p, nil
}

// Merge folds another policy into this one. On a preallocated-owner
// conflict the other policy wins, so a policy file overrides env entries.
func (p Policy) Merge(other Policy) Policy {
	out := Policy{
		Reserved:     append([]string{}, p.Reserved...),
		Preallocated: map[string]string{},
	}
	out.Reserved = append(out.Reserved, other.Reserved...)
	for name, owner := range p.Preallocated {
		out.Preallocated[name] = owner
	}
	for name, owner := range other.Preallocated {
		out.Preallocated[name] = owner
	}
	return out
}
