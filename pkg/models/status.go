package models

// SuiteStatus is the outcome of a single probe against its expectations.
type SuiteStatus string

const (
	// StatusPass means both expectations were present and matched.
	StatusPass SuiteStatus = "PASS"
	// StatusFail means the service answered but the routing did not match.
	StatusFail SuiteStatus = "FAIL"
	// StatusSkip means the payload carried no expectations.
	StatusSkip SuiteStatus = "SKIP"
	// StatusError means a transport failure or a non-2xx response.
	StatusError SuiteStatus = "ERROR"
)

// Valid returns true if the status is a known value.
func (s SuiteStatus) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusSkip, StatusError:
		return true
	default:
		return false
	}
}

// AllStatuses lists the statuses in report order.
func AllStatuses() []SuiteStatus {
	return []SuiteStatus{StatusPass, StatusFail, StatusSkip, StatusError}
}
