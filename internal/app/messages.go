package app

import (
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
)

// TickMsg triggers a snapshot poll.
type TickMsg time.Time

// TriggerMsg carries a presence trigger from the session.
type TriggerMsg beacon.Event

// ScanErrorMsg reports a scan-source failure.
type ScanErrorMsg struct {
	Err error
}
