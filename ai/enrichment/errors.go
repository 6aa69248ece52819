package enrichment

import (
	"errors"
	"net"
	"strings"
	"time"
)

// Enrichment error taxonomy. Malformed events are terminal: redelivery of
// the same broken payload cannot self-correct, so they are logged and
// dropped. Everything transient is retried with backoff up to maxAttempts.
var (
	ErrMalformedEvent          = errors.New("malformed change event")
	ErrCategoryListUnavailable = errors.New("category list unavailable")
)

// ErrorClass represents the category of an error for retry decisions.
type ErrorClass int

const (
	// ErrorClassTransient covers network timeouts and temporary service
	// unavailability. Retried.
	ErrorClassTransient ErrorClass = iota

	// ErrorClassPermanent covers validation failures and malformed input.
	// Not retried.
	ErrorClassPermanent
)

func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its classification and retry guidance.
type ClassifiedError struct {
	Original   error
	Class      ErrorClass
	RetryAfter time.Duration
}

func (c *ClassifiedError) Error() string {
	return c.Class.String() + ": " + c.Original.Error()
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

func (c *ClassifiedError) IsTransient() bool {
	return c.Class == ErrorClassTransient
}

// ClassifyError analyzes an error and determines its class and retry delay.
// Unknown errors default to permanent: retrying a fault we cannot identify
// burns quota without converging.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMalformedEvent) {
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}
	if errors.Is(err, ErrCategoryListUnavailable) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: 2 * time.Second}
	}

	if isNetworkError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: 2 * time.Second}
	}
	if isTimeoutError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: 3 * time.Second}
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"rate limit",
		"429",
		"502",
		"503",
		"overloaded",
		"service unavailable",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: 5 * time.Second}
		}
	}

	return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
}

// isNetworkError checks if an error is network-related (transient).
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"temporary failure",
		"dial tcp",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if an error is timeout-related (transient).
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded")
}
