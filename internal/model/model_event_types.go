package model

import (
	"encoding/json"
	"fmt"
)

// Event type URIs are stable wire identifiers. Subscribers match on the exact
// string, so these must never be altered.
const (
	EventColorsChanged    = "https://grcorsair.com/events/colors-changed/v1"
	EventComplianceChange = "https://grcorsair.com/events/compliance-change/v1"
	EventCredentialChange = "https://grcorsair.com/events/credential-change/v1"
	EventSessionRevoked   = "https://grcorsair.com/events/session-revoked/v1"
)

func GetSupportedEvents() []string {
	return []string{
		EventColorsChanged,
		EventComplianceChange,
		EventCredentialChange,
		EventSessionRevoked,
	}
}

const (
	ChangeDirectionIncrease = "increase"
	ChangeDirectionDecrease = "decrease"

	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"

	CredentialIssued  = "issued"
	CredentialRenewed = "renewed"
	CredentialRevoked = "revoked"
	CredentialExpired = "expired"
)

// CorsairIdentifier correlates an event to a previously issued compliance
// credential. MarqueId is the only mandatory member.
type CorsairIdentifier struct {
	MarqueId  string `json:"marqueId"`
	Provider  string `json:"provider,omitempty"`
	Criterion string `json:"criterion,omitempty"`
}

type EventSubject struct {
	Format  string            `json:"format"`
	Corsair CorsairIdentifier `json:"corsair"`
}

func NewEventSubject(marqueId string) EventSubject {
	return EventSubject{Format: "complex", Corsair: CorsairIdentifier{MarqueId: marqueId}}
}

/*
EventData is the CAEP event taxonomy expressed as a tagged union. The tag is
the event type URI returned by EventType. Consumers branch on the four known
variants with a type switch; UnknownEvent carries anything else so that
handling code never has to fail on an unrecognized type.
*/
type EventData interface {
	EventType() string
	Marque() string
}

type BaseEvent struct {
	Subject        EventSubject `json:"subject"`
	EventTimestamp int64        `json:"event_timestamp"`
}

func (e BaseEvent) Marque() string {
	return e.Subject.Corsair.MarqueId
}

// ColorsChangedEvent signals an assurance-tier transition.
type ColorsChangedEvent struct {
	BaseEvent
	PreviousLevel   string `json:"previous_level"`
	CurrentLevel    string `json:"current_level"`
	ChangeDirection string `json:"change_direction"`
}

func (ColorsChangedEvent) EventType() string { return EventColorsChanged }

// ComplianceChangeEvent signals detected control drift.
type ComplianceChangeEvent struct {
	BaseEvent
	DriftType        string   `json:"drift_type"`
	Severity         string   `json:"severity"`
	AffectedControls []string `json:"affected_controls"`
}

func (ComplianceChangeEvent) EventType() string { return EventComplianceChange }

// CredentialChangeEvent signals a credential lifecycle transition.
type CredentialChangeEvent struct {
	BaseEvent
	CredentialType string `json:"credential_type"`
	ChangeType     string `json:"change_type"`
}

func (CredentialChangeEvent) EventType() string { return EventCredentialChange }

// SessionRevokedEvent signals an emergency revocation.
type SessionRevokedEvent struct {
	BaseEvent
	Reason              string `json:"reason"`
	RevocationTimestamp int64  `json:"revocation_timestamp"`
	Initiator           string `json:"initiator"`
}

func (SessionRevokedEvent) EventType() string { return EventSessionRevoked }

// UnknownEvent holds an event payload whose type URI is not part of the
// FLAGSHIP taxonomy. It keeps the raw claims for diagnostics.
type UnknownEvent struct {
	BaseEvent
	Type   string                 `json:"-"`
	Claims map[string]interface{} `json:"-"`
}

func (e UnknownEvent) EventType() string { return e.Type }

/*
ParseEventData decodes one value of a SET "events" map into its taxonomy
variant. Unrecognized URIs decode into UnknownEvent. An error is only
returned when the raw JSON itself is malformed.
*/
func ParseEventData(eventUri string, raw json.RawMessage) (EventData, error) {
	switch eventUri {
	case EventColorsChanged:
		var ev ColorsChangedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", eventUri, err)
		}
		return ev, nil
	case EventComplianceChange:
		var ev ComplianceChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", eventUri, err)
		}
		return ev, nil
	case EventCredentialChange:
		var ev CredentialChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", eventUri, err)
		}
		return ev, nil
	case EventSessionRevoked:
		var ev SessionRevokedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", eventUri, err)
		}
		return ev, nil
	default:
		var ev UnknownEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", eventUri, err)
		}
		ev.Type = eventUri
		_ = json.Unmarshal(raw, &ev.Claims)
		return ev, nil
	}
}
