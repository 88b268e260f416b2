// Package registry is the system of record for subdomain claims. A single
// Registry owns the claim table plus the static reserved and preallocated
// policy sets, and serializes every mutation behind one lock so an
// availability check and its insert commit as one unit.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Subdomains are 3-63 chars of lowercase alphanumerics and inner hyphens.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

const (
	minLength = 3
	maxLength = 63
)

// Reason is the closed set of rejection codes for a subdomain that cannot
// be claimed.
type Reason string

const (
	ReasonReserved      Reason = "reserved"
	ReasonPreallocated  Reason = "preallocated"
	ReasonClaimed       Reason = "claimed"
	ReasonTooShort      Reason = "too_short"
	ReasonTooLong       Reason = "too_long"
	ReasonInvalidFormat Reason = "invalid_format"
)

// Claim binds one subdomain to one owner. ClaimedAt is set at creation and
// never mutated; LIFO release depends on it.
type Claim struct {
	Subdomain string    `json:"subdomain"`
	OwnerID   string    `json:"owner_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Availability is the outcome of a check. OwnerID is set when the name is
// already bound (claimed or preallocated).
type Availability struct {
	Available bool   `json:"available"`
	Reason    Reason `json:"reason,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
}

// Rejection is a policy outcome, not a fault. Callers map it to a 4xx
// response; anything else out of the registry is an internal error.
type Rejection struct {
	Reason  Reason
	OwnerID string
}

func (e *Rejection) Error() string { return string(e.Reason) }

// Policy carries the immutable reservation sets supplied at service start.
type Policy struct {
	Reserved     []string          `yaml:"reserved"`
	Preallocated map[string]string `yaml:"preallocated"`
}

// Registry holds all claims. Mutations persist to the store before they
// commit to memory, so the two views never diverge.
type Registry struct {
	mu           sync.RWMutex
	claims       map[string]Claim
	reserved     map[string]struct{}
	preallocated map[string]string
	store        Store
	now          func() time.Time
	log          *zap.SugaredLogger
}

// New builds a Registry from the policy sets and primes it with the store's
// persisted claims. Policy names are normalized once here.
func New(ctx context.Context, store Store, pol Policy, log *zap.SugaredLogger) (*Registry, error) {
	r := &Registry{
		claims:       map[string]Claim{},
		reserved:     map[string]struct{}{},
		preallocated: map[string]string{},
		store:        store,
		now:          time.Now,
		log:          log,
	}
	for _, name := range pol.Reserved {
		r.reserved[Normalize(name)] = struct{}{}
	}
	for name, owner := range pol.Preallocated {
		r.preallocated[Normalize(name)] = owner
	}
	if store != nil {
		persisted, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load claims: %w", err)
		}
		for _, c := range persisted {
			r.claims[c.Subdomain] = c
		}
	}
	return r, nil
}

// Normalize lowercases and trims a requested subdomain. Every registry
// operation works on normalized names.
func Normalize(subdomain string) string {
	return strings.ToLower(strings.TrimSpace(subdomain))
}

// CheckAvailability reports whether a subdomain can be claimed and, if not,
// why. Reservation and preallocation are answered before the length and
// format checks so a reserved name is rejected as reserved, not as
// malformed.
func (r *Registry) CheckAvailability(subdomain string) Availability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availabilityLocked(Normalize(subdomain))
}

func (r *Registry) availabilityLocked(norm string) Availability {
	if _, ok := r.reserved[norm]; ok {
		return Availability{Reason: ReasonReserved}
	}
	if owner, ok := r.preallocated[norm]; ok {
		return Availability{Reason: ReasonPreallocated, OwnerID: owner}
	}
	if c, ok := r.claims[norm]; ok {
		return Availability{Reason: ReasonClaimed, OwnerID: c.OwnerID}
	}
	if len(norm) < minLength {
		return Availability{Reason: ReasonTooShort}
	}
	if len(norm) > maxLength {
		return Availability{Reason: ReasonTooLong}
	}
	if !subdomainPattern.MatchString(norm) {
		return Availability{Reason: ReasonInvalidFormat}
	}
	return Availability{Available: true}
}

// CreateClaim claims a subdomain for ownerID. The availability check and
// the insert run under one lock; concurrent claims for the same name cannot
// both succeed. A *Rejection reports a policy outcome, any other error
// means persistence failed and nothing was committed.
func (r *Registry) CreateClaim(ctx context.Context, subdomain, ownerID string) (Claim, error) {
	norm := Normalize(subdomain)
	r.mu.Lock()
	defer r.mu.Unlock()
	if av := r.availabilityLocked(norm); !av.Available {
		return Claim{}, &Rejection{Reason: av.Reason, OwnerID: av.OwnerID}
	}
	c := Claim{Subdomain: norm, OwnerID: ownerID, ClaimedAt: r.now().UTC()}
	if r.store != nil {
		if err := r.store.Insert(ctx, c); err != nil {
			return Claim{}, fmt.Errorf("persist claim %q: %w", norm, err)
		}
	}
	r.claims[norm] = c
	return c, nil
}

// ReleaseClaim removes a claim and reports whether one existed. Releasing a
// name twice returns false the second time.
func (r *Registry) ReleaseClaim(ctx context.Context, subdomain string) (bool, error) {
	norm := Normalize(subdomain)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(ctx, norm)
}

func (r *Registry) releaseLocked(ctx context.Context, norm string) (bool, error) {
	if _, ok := r.claims[norm]; !ok {
		return false, nil
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, norm); err != nil {
			return false, fmt.Errorf("persist release %q: %w", norm, err)
		}
	}
	delete(r.claims, norm)
	return true, nil
}

// UserClaims returns the owner's claims sorted newest first.
func (r *Registry) UserClaims(ownerID string) []Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userClaimsLocked(ownerID)
}

func (r *Registry) userClaimsLocked(ownerID string) []Claim {
	var out []Claim
	for _, c := range r.claims {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClaimedAt.Equal(out[j].ClaimedAt) {
			return out[i].ClaimedAt.After(out[j].ClaimedAt)
		}
		return out[i].Subdomain < out[j].Subdomain
	})
	return out
}

// SubdomainsToRelease returns the names that must be given up when the
// owner's allotment shrinks to newQuantity, newest claim first.
func (r *Registry) SubdomainsToRelease(ownerID string, newQuantity int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toReleaseLocked(ownerID, newQuantity)
}

func (r *Registry) toReleaseLocked(ownerID string, newQuantity int) []string {
	owned := r.userClaimsLocked(ownerID)
	if newQuantity < 0 {
		newQuantity = 0
	}
	if len(owned) <= newQuantity {
		return nil
	}
	excess := owned[:len(owned)-newQuantity]
	out := make([]string, 0, len(excess))
	for _, c := range excess {
		out = append(out, c.Subdomain)
	}
	return out
}

// ProcessSubscriptionChange releases the owner's newest claims until only
// newQuantity remain and returns what was released. An owner with no claims
// is a valid no-op. If persistence fails mid-batch the names already
// released stay released, the rest stay claimed, and the error reports the
// stall.
func (r *Registry) ProcessSubscriptionChange(ctx context.Context, ownerID string, newQuantity int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	released := []string{}
	for _, name := range r.toReleaseLocked(ownerID, newQuantity) {
		if _, err := r.releaseLocked(ctx, name); err != nil {
			return released, err
		}
		released = append(released, name)
		if r.log != nil {
			r.log.Infow("claim released", "subdomain", name, "owner_id", ownerID)
		}
	}
	return released, nil
}

// ActiveCount reports how many claims are currently held.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.claims)
}
