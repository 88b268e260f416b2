// Package webhook turns signed subscription events from the billing
// provider into registry release calls. Intake is verify, extract, dedupe,
// then release; every step before the release is side-effect free so a
// rejected delivery leaves nothing behind.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrMalformed marks payloads the profile cannot read. Callers answer 400.
var ErrMalformed = errors.New("malformed event")

// Releaser is the registry entry point subscription changes drive.
type Releaser interface {
	ProcessSubscriptionChange(ctx context.Context, ownerID string, newQuantity int) ([]string, error)
}

// Result reports what a delivery did.
type Result struct {
	Event     Event
	Ignored   bool
	Duplicate bool
	Released  []string
}

// Service handles webhook deliveries.
type Service struct {
	secret    []byte
	tolerance time.Duration
	profile   Profile
	dedupe    Deduper
	releaser  Releaser
	log       *zap.SugaredLogger
	now       func() time.Time
}

func New(secret []byte, tolerance time.Duration, profile Profile, dedupe Deduper, rel Releaser, log *zap.SugaredLogger) *Service {
	return &Service{
		secret:    secret,
		tolerance: tolerance,
		profile:   profile,
		dedupe:    dedupe,
		releaser:  rel,
		log:       log,
		now:       time.Now,
	}
}

// Handle verifies one delivery and applies it. Signature and staleness
// failures surface as ErrBadSignature and ErrStale, unreadable payloads as
// ErrMalformed; anything else is a release failure.
func (s *Service) Handle(ctx context.Context, sigHeader string, body []byte) (Result, error) {
	if err := VerifySignature(s.secret, sigHeader, body, s.tolerance, s.now()); err != nil {
		return Result{}, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, err := s.profile.Extract(doc)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !s.profile.Accepts(ev.Type) {
		return Result{Event: ev, Ignored: true}, nil
	}
	if s.dedupe != nil && !s.dedupe.FirstDelivery(ctx, ev.ID) {
		if s.log != nil {
			s.log.Infow("duplicate webhook delivery", "event_id", ev.ID)
		}
		return Result{Event: ev, Duplicate: true}, nil
	}

	released, err := s.releaser.ProcessSubscriptionChange(ctx, ev.OwnerID, ev.Quantity)
	if err != nil {
		return Result{Event: ev}, err
	}
	if s.log != nil {
		s.log.Infow("subscription change applied",
			"event_id", ev.ID, "owner_id", ev.OwnerID, "quantity", ev.Quantity, "released", released)
	}
	return Result{Event: ev, Released: released}, nil
}
