package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrorClass represents the category of a provider failure for retry decisions.
type ErrorClass int

const (
	// Examples: network timeout, rate limiting, 5xx.
	ErrorClassTransient ErrorClass = iota

	// Examples: missing credentials, bad request, unknown model.
	ErrorClassPermanent
)

// String returns the string representation of ErrorClass.
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

// ClassifiedError wraps a provider error with its classification.
type ClassifiedError struct {
	Original   error
	Class      ErrorClass
	StatusCode int // HTTP status when the SDK exposed one
	RetryAfter time.Duration
}

// Error returns a formatted error message.
func (c *ClassifiedError) Error() string {
	if c.Original == nil {
		return fmt.Sprintf("classified error: class=%s", c.Class)
	}
	return fmt.Sprintf("%s: %v", c.Class, c.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

// IsTransient returns true if the error is temporary and should be retried.
func (c *ClassifiedError) IsTransient() bool {
	return c.Class == ErrorClassTransient
}

// ClassifyError determines whether a provider failure is worth retrying.
// Unknown errors are permanent.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}

	if code := statusCode(err); code != 0 {
		return classifyStatus(err, code)
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: 3 * time.Second}
	}

	if isNetworkError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: 2 * time.Second}
	}

	return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
}

// ShouldRetry returns true if the error warrants another attempt.
func ShouldRetry(err error) bool {
	classified := ClassifyError(err)
	return classified != nil && classified.IsTransient()
}

func classifyStatus(err error, code int) *ClassifiedError {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, StatusCode: code}
	default:
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err, StatusCode: code}
	}
}

// statusCode extracts the HTTP status from the SDK error types, or 0.
func statusCode(err error) int {
	var openaiAPIErr *openai.APIError
	if errors.As(err, &openaiAPIErr) {
		return openaiAPIErr.HTTPStatusCode
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return openaiReqErr.HTTPStatusCode
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}

// StatusError is an HTTP failure from a client that does not go through
// one of the vendor SDKs.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.Provider, e.Code)
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
		"connection lost",
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
	errMsg := strings.ToLower(err.Error())
	timeoutPatterns := []string{
		"timeout",
		"deadline exceeded",
		"i/o timeout",
		"operation timed out",
	}
	for _, pattern := range timeoutPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
