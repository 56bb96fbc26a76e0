package vk

import "fmt"

// VK API error codes we branch on. The full list lives at
// https://dev.vk.com/reference/errors; anything not listed is treated as a
// permanent per-item failure.
const (
	ErrCodeUnknown         = 1
	ErrCodeAuthFailed      = 5
	ErrCodeTooManyRequests = 6
	ErrCodeFlood           = 9
	ErrCodeInternal        = 10
	ErrCodeAccessDenied    = 15
	ErrCodePageDeleted     = 18
	ErrCodeRateLimit       = 29
	ErrCodeParamMissing    = 100
	ErrCodeGroupAccess     = 203
	ErrCodeWallDisabled    = 15 // wall access is reported as access denied
)

// APIError is the decoded VK error envelope.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the request may succeed if retried after a
// backoff. Covers throttling and transient server faults.
func (e *APIError) Retryable() bool {
	switch e.Code {
	case ErrCodeTooManyRequests, ErrCodeFlood, ErrCodeInternal, ErrCodeRateLimit:
		return true
	}
	return false
}
