package domain

import "time"

// ConsentState is the recorded cache-consent decision
type ConsentState string

const (
	ConsentAbsent   ConsentState = ""
	ConsentAccepted ConsentState = "accepted"
	ConsentIgnored  ConsentState = "ignored"
)

const (
	// ConsentAcceptedTTL keeps an acceptance for a year
	ConsentAcceptedTTL = 365 * 24 * time.Hour
	// ConsentIgnoredTTL lets the prompt come back after a week
	ConsentIgnoredTTL = 7 * 24 * time.Hour
)

// ParseConsentState maps a stored value to a known state; unknown values are absent
func ParseConsentState(v string) ConsentState {
	switch ConsentState(v) {
	case ConsentAccepted:
		return ConsentAccepted
	case ConsentIgnored:
		return ConsentIgnored
	default:
		return ConsentAbsent
	}
}
