package queue

import "fmt"

// Status represents the current lifecycle state of a queue row. The same
// four states back every queue instantiation (outbox, inbox, timers,
// job-runs); the inbox-facing producer API (package inbox) documents them
// under the names Seen/Processing/Done/Dead, but it is the same state
// machine and the same underlying integers — see DESIGN.md.
//
// The state machine is:
//
//	Ready      -> InProgress
//	InProgress -> Done
//	InProgress -> Ready   (via Abandon, or ReapExpired)
//	InProgress -> Failed
type Status uint8

const (
	// Unknown is the zero value, used by Client.List/Client.Clean to
	// mean "no status filter".
	Unknown Status = iota

	// Ready indicates the row is eligible for Claim once its due_time
	// (if any) and locked_until (if any) have passed.
	Ready

	// InProgress indicates the row has been claimed and is owned by the
	// owner token recorded on the row. locked_until is the visibility
	// timeout; once it elapses the row is eligible for Claim again.
	InProgress

	// Done indicates successful terminal completion. Never reclaimed.
	Done

	// Failed indicates permanent terminal failure (poison message).
	// Never reclaimed.
	Failed
)

func statusToString(s Status) string {
	switch s {
	case Ready:
		return "Ready"
	case InProgress:
		return "InProgress"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func statusFromString(s string) (Status, error) {
	switch s {
	case "Ready":
		return Ready, nil
	case "InProgress":
		return InProgress, nil
	case "Done":
		return Done, nil
	case "Failed":
		return Failed, nil
	case "Unknown":
		return Unknown, nil
	default:
		return 0, fmt.Errorf("queue: unknown status: %s", s)
	}
}

// ParseStatus converts a string representation of a status into a Status
// value. An error is returned for unrecognized strings.
func ParseStatus(s string) (Status, error) {
	return statusFromString(s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(statusToString(s)), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	status, err := statusFromString(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

func (s Status) String() string {
	return statusToString(s)
}
