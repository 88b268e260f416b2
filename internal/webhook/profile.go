// internal/webhook/profile.go
package webhook

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	jmes "github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"
)

// Event is the subscription-change signal extracted from a provider
// payload.
type Event struct {
	ID       string
	Type     string
	OwnerID  string
	Quantity int
}

// Profile maps a provider's payload shape onto Event via JMESPath
// expressions, so switching billing providers is a config change. Accept
// filters event types; empty accepts everything.
type Profile struct {
	EventIDPath   string   `yaml:"event_id_path"`
	EventTypePath string   `yaml:"event_type_path"`
	OwnerIDPath   string   `yaml:"owner_id_path"`
	QuantityPath  string   `yaml:"quantity_path"`
	Accept        []string `yaml:"accept"`
}

// DefaultProfile reads the native payload shape:
//
//	{"id": "...", "type": "subscription.updated", "ownerId": "...", "quantity": 3}
func DefaultProfile() Profile {
	return Profile{
		EventIDPath:   "id",
		EventTypePath: "type",
		OwnerIDPath:   "ownerId",
		QuantityPath:  "quantity",
	}
}

// LoadProfileFile reads a Profile from YAML. Paths that the file leaves
// empty fall back to the defaults.
func LoadProfileFile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read webhook profile: %w", err)
	}
	p := DefaultProfile()
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse webhook profile %s: %w", path, err)
	}
	if p.EventIDPath == "" {
		p.EventIDPath = "id"
	}
	if p.EventTypePath == "" {
		p.EventTypePath = "type"
	}
	if p.OwnerIDPath == "" {
		p.OwnerIDPath = "ownerId"
	}
	if p.QuantityPath == "" {
		p.QuantityPath = "quantity"
	}
	return p, nil
}

// Accepts reports whether the profile admits this event type.
func (p Profile) Accepts(eventType string) bool {
	if len(p.Accept) == 0 {
		return true
	}
	for _, t := range p.Accept {
		if t == eventType {
			return true
		}
	}
	return false
}

// Extract pulls an Event out of a decoded payload. Owner and quantity are
// required; id and type may be absent when the provider does not send them.
func (p Profile) Extract(doc any) (Event, error) {
	var ev Event
	ev.ID = searchString(p.EventIDPath, doc)
	ev.Type = searchString(p.EventTypePath, doc)
	ev.OwnerID = searchString(p.OwnerIDPath, doc)
	if ev.OwnerID == "" {
		return Event{}, errors.New("payload missing owner id")
	}
	qty, err := jmes.Search(p.QuantityPath, doc)
	if err != nil || qty == nil {
		return Event{}, errors.New("payload missing quantity")
	}
	n, err := coerceQuantity(qty)
	if err != nil {
		return Event{}, err
	}
	ev.Quantity = n
	return ev, nil
}

func searchString(path string, doc any) string {
	if path == "" {
		return ""
	}
	v, err := jmes.Search(path, doc)
	if err != nil || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// coerceQuantity accepts the numeric shapes JSON decoding produces plus
// numeric strings, since billing providers disagree on which to send.
func coerceQuantity(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("quantity %q is not a number", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("quantity has unsupported type %T", v)
	}
}
