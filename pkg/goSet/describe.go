package goSet

import (
	"fmt"
	"strings"

	"github.com/grcorsair/flagship/internal/model"
)

/*
Describe renders an event as one plain-English sentence for non-technical
consumers. It is a pure function: unrecognized event types fall back to a
generic sentence naming only the marqueId rather than failing.
*/
func Describe(event model.EventData) string {
	switch ev := event.(type) {
	case model.ColorsChangedEvent:
		verb := "changed"
		switch ev.ChangeDirection {
		case model.ChangeDirectionIncrease:
			verb = "upgraded"
		case model.ChangeDirectionDecrease:
			verb = "downgraded"
		}
		return fmt.Sprintf("Assurance for credential %s was %s from %s to %s.",
			ev.Marque(), verb, ev.PreviousLevel, ev.CurrentLevel)

	case model.ComplianceChangeEvent:
		controls := "no controls identified"
		if len(ev.AffectedControls) > 0 {
			controls = "affecting " + strings.Join(ev.AffectedControls, ", ")
		}
		return fmt.Sprintf("Compliance drift (%s) of %s severity was detected on credential %s, %s.",
			ev.DriftType, ev.Severity, ev.Marque(), controls)

	case model.CredentialChangeEvent:
		return fmt.Sprintf("The %s credential %s was %s.",
			ev.CredentialType, ev.Marque(), ev.ChangeType)

	case model.SessionRevokedEvent:
		return fmt.Sprintf("EMERGENCY: Sessions for credential %s were revoked by %s. Reason: %s.",
			ev.Marque(), ev.Initiator, ev.Reason)

	default:
		return fmt.Sprintf("A security event occurred for credential %s.", event.Marque())
	}
}
