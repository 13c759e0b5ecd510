package scan

import "time"

// Event is one raw advertisement. Name is empty and HasRSSI false when the
// radio did not report them.
type Event struct {
	Name    string
	RSSI    int16
	HasRSSI bool
	Time    time.Time // zero means "use the receiver's clock"
}

// Valid reports whether the event carries both a name and a signal.
func (e Event) Valid() bool {
	return e.Name != "" && e.HasRSSI
}

// RadioState is the adapter power state as reported by the source.
type RadioState int

const (
	RadioOther RadioState = iota
	RadioPoweredOn
)

func (s RadioState) String() string {
	if s == RadioPoweredOn {
		return "PoweredOn"
	}
	return "Other"
}

// Handler receives everything a Source produces. Calls may arrive from any
// goroutine and at any rate.
type Handler interface {
	HandleScanEvent(Event)
	HandleRadioState(RadioState)
	HandleScanError(error)
}

// Source is a radio scan collaborator. Start returns an error when the radio
// cannot be acquired; Stop halts delivery and is safe to call repeatedly.
type Source interface {
	Start(h Handler) error
	Stop()
}
