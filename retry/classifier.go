package retry

import "net/http"

// Classifier decides whether a delivery failure is transient (retry) or
// permanent (abandon) based on the HTTP response status. Transport-level
// failures (connection errors, timeouts) never reach the classifier;
// they are always retryable.
//
// The zero value applies the default rule: 429 Too Many Requests and all 5xx
// statuses are retryable, everything else is permanent.
type Classifier struct {
	statuses map[int]struct{}
}

// NewClassifier creates a Classifier that treats exactly the given statuses
// as retryable, replacing the default rule.
func NewClassifier(retryableStatuses ...int) Classifier {
	statuses := make(map[int]struct{}, len(retryableStatuses))
	for _, s := range retryableStatuses {
		statuses[s] = struct{}{}
	}
	return Classifier{statuses: statuses}
}

// Retryable reports whether a delivery attempt that ended with the given
// HTTP status should be retried. Success statuses (2xx) are never retryable;
// callers handle them before classification.
func (c Classifier) Retryable(statusCode int) bool {
	if c.statuses != nil {
		_, ok := c.statuses[statusCode]
		return ok
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
