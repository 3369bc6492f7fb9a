package worker

import (
	"errors"
	"strings"

	"wacast/utils"
)

// FailureKind decides what the dispatch loop does with a failed send
type FailureKind int

const (
	// FailureTerminal is a non-retryable failure; the item is marked failed
	FailureTerminal FailureKind = iota

	// FailureRetryable is a transient failure; the item is rescheduled with
	// backoff while retry budget remains
	FailureRetryable

	// FailureHardLimit is a provider-side quota/plan exhaustion; the whole
	// campaign is paused rather than burning retries against a dead quota
	FailureHardLimit
)

func (k FailureKind) String() string {
	switch k {
	case FailureRetryable:
		return "retryable"
	case FailureHardLimit:
		return "hard-limit"
	default:
		return "terminal"
	}
}

var hardLimitWords = []string{"exceed", "limit", "quota", "payment"}
var quotaWords = []string{"quota", "limit", "trial"}
var transientWords = []string{"timeout", "timed out", "deadline exceeded", "connection reset", "connection refused", "eof", "temporarily"}

// Classify maps a gateway error onto a failure kind. Provider error text is
// not a stable contract, so the match is heuristic: HTTP status codes are
// checked first, message substrings second.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureTerminal
	}

	var sendErr *utils.SendError
	status := 0
	msg := strings.ToLower(err.Error())
	if errors.As(err, &sendErr) {
		status = sendErr.StatusCode
		msg = strings.ToLower(sendErr.Message)
	}

	// Status codes are the most reliable signal
	switch {
	case status == 402:
		return FailureHardLimit
	case status == 403 && containsAny(msg, quotaWords):
		return FailureHardLimit
	case status == 408 || status == 429 || status >= 500:
		return FailureRetryable
	}

	// No usable status; fall back to wording
	if status == 0 && containsAny(msg, transientWords) {
		return FailureRetryable
	}
	if containsAny(msg, hardLimitWords) {
		return FailureHardLimit
	}

	return FailureTerminal
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
