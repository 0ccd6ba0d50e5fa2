package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents transient network/HTTP errors (timeouts, 5xx, 429)
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeBlocked represents a portal actively refusing access (403, CAPTCHA, block page)
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeParse represents HTML parsing errors
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeRobots represents a robots.txt disallow (a skip, not a failure)
	ErrorTypeRobots ErrorType = "robots"
	// ErrorTypeStorage represents listing store errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeNotification represents notification channel errors
	ErrorTypeNotification ErrorType = "notification"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a portal-scoped scraping error
type ScrapeError struct {
	Type    ErrorType
	Portal  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Portal, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Portal, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the request may be retried with backoff
func (e *ScrapeError) IsRetryable() bool {
	return e.Type == ErrorTypeFetch
}

// IsFatal returns true if the error must end the crawl of its portal.
// Parse and robots errors are absorbed inside the crawl loop; everything
// network-shaped that survives the retry policy is fatal for the portal.
func (e *ScrapeError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeFetch, ErrorTypeBlocked:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, portal, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Portal:  portal,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new transient fetch error
func NewFetch(portal, message string, err error) *ScrapeError {
	return New(ErrorTypeFetch, portal, message, err)
}

// NewBlocked creates a new blocked-access error
func NewBlocked(portal, message string, err error) *ScrapeError {
	return New(ErrorTypeBlocked, portal, message, err)
}

// NewParse creates a new parsing error
func NewParse(portal, message string, err error) *ScrapeError {
	return New(ErrorTypeParse, portal, message, err)
}

// NewRobots creates a new robots.txt disallow marker
func NewRobots(portal, url string) *ScrapeError {
	return New(ErrorTypeRobots, portal, fmt.Sprintf("disallowed by robots.txt: %s", url), nil)
}

// NewStorage creates a new storage error
func NewStorage(message string, err error) *ScrapeError {
	return New(ErrorTypeStorage, "", message, err)
}

// NewNotification creates a new notification error
func NewNotification(channel, message string, err error) *ScrapeError {
	return New(ErrorTypeNotification, channel, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsRobotsDisallow reports whether err is a robots.txt disallow skip.
func IsRobotsDisallow(err error) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeRobots
	}
	return false
}

// IsBlocked reports whether err means the portal refused automated access.
func IsBlocked(err error) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeBlocked
	}
	return false
}
