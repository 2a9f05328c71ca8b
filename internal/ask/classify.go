package ask

import (
	"strings"

	"github.com/ShayCichocki/askgate/pkg/models"
)

// Classify derives the suite status of one probe:
//
//	ERROR  no 2xx response, or a request error
//	SKIP   no expectation at all
//	PASS   both expectations set and both equal the chosen route
//	FAIL   anything else
func Classify(httpStatus *int, requestError *string, expected models.Payload, got models.Route) models.SuiteStatus {
	if requestError != nil || httpStatus == nil || *httpStatus < 200 || *httpStatus >= 300 {
		return models.StatusError
	}

	wantIntent := strings.TrimSpace(expected.ExpectedIntent)
	wantEntity := strings.TrimSpace(expected.ExpectedEntity)
	if wantIntent == "" && wantEntity == "" {
		return models.StatusSkip
	}
	if wantIntent != "" && wantEntity != "" &&
		matches(wantIntent, got.Intent) && matches(wantEntity, got.Entity) {
		return models.StatusPass
	}
	return models.StatusFail
}

// matches reports whether a present expectation equals the chosen value.
func matches(want string, got *string) bool {
	return got != nil && strings.TrimSpace(*got) == want
}

// RouteMatches compares only the expectations that are set; used by the
// routing diff where partial expectations are common.
func RouteMatches(expected models.Payload, got models.Route) bool {
	if e := strings.TrimSpace(expected.ExpectedIntent); e != "" && !matches(e, got.Intent) {
		return false
	}
	if e := strings.TrimSpace(expected.ExpectedEntity); e != "" && !matches(e, got.Entity) {
		return false
	}
	return true
}
