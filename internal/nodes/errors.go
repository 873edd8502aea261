package nodes

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrorKind classifies a node failure.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindRateLimit   ErrorKind = "rate_limit"
	KindTimeout     ErrorKind = "timeout"
	KindExternal    ErrorKind = "external"
	KindUnknownNode ErrorKind = "unknown_kind"
)

// NodeError is the error returned by Execute. Message is safe to show users;
// Err keeps the raw cause for logs.
type NodeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *NodeError) Error() string {
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// ProviderError is how capability adapters report a failed external call.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

var rateLimitPhrases = []string{
	"429",
	"too many requests",
	"rate limit",
	"quota",
	"resource_exhausted",
}

// compact forms catch identifier spellings such as rateLimitExceeded,
// RESOURCE_EXHAUSTED, TooManyRequests or rate-limit.
var rateLimitTokens = []string{
	"toomanyrequests",
	"ratelimit",
	"quota",
	"resourceexhausted",
}

func compact(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether err is provider throttling: HTTP 429, a quota or
// rate-limit error code, or a message naming one of those conditions.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if pe.Code != "" && containsAny(compact(pe.Code), rateLimitTokens) {
			return true
		}
	}

	var ne *NodeError
	if errors.As(err, &ne) && ne.Kind == KindRateLimit {
		return true
	}

	msg := err.Error()
	return containsAny(strings.ToLower(msg), rateLimitPhrases) || containsAny(compact(msg), rateLimitTokens)
}

// IsTimeout reports whether err comes from a deadline, a cancellation or a
// transport timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne *NodeError
	if errors.As(err, &ne) && ne.Kind == KindTimeout {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// KindOf returns the classification of err.
func KindOf(err error) ErrorKind {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	switch {
	case IsTimeout(err):
		return KindTimeout
	case IsRateLimit(err):
		return KindRateLimit
	}
	return KindExternal
}

// retryable reports whether a failed external call is worth another attempt.
// Validation problems, throttling, deadlines and client errors are final.
func retryable(err error) bool {
	var ne *NodeError
	if errors.As(err, &ne) {
		return false
	}
	if IsTimeout(err) || IsRateLimit(err) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.StatusCode != http.StatusRequestTimeout {
		return false
	}
	return true
}

func validationError(msg string) *NodeError {
	return &NodeError{Kind: KindValidation, Message: msg}
}
