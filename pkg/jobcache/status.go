package jobcache

// Status is the lifecycle state of a tracked job.
//
// NOTE: These values are persisted in the cache file and are part of the
// stable on-disk contract.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHeld     Status = "held"
	StatusQueueing Status = "queueing"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusAnalysed Status = "analysed"
)

// ParseStatus converts a user-supplied string into a Status. The empty
// string parses to StatusUnknown. Anything outside the closed set is a
// ValidationError.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "":
		return StatusUnknown, nil
	case StatusUnknown, StatusHeld, StatusQueueing, StatusRunning, StatusFinished, StatusAnalysed:
		return Status(s), nil
	default:
		return "", &ValidationError{Field: "status", Message: "unrecognised status: " + s}
	}
}

// Live reports whether the status is eligible for automatic re-probing.
func (s Status) Live() bool {
	switch s {
	case StatusUnknown, StatusHeld, StatusQueueing, StatusRunning:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final. Terminal jobs are never
// touched by the status probe; analysed is reachable only by an explicit
// modify.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAnalysed
}

func (s Status) String() string {
	return string(s)
}
