package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

var (
	// ErrConfiguration means the active provider is missing connection parameters or is unknown.
	ErrConfiguration = errors.New("llm configuration error")
	// ErrAuthentication means the client-credentials exchange failed.
	ErrAuthentication = errors.New("llm authentication failed")
	// ErrProvider means the inference call failed (network, timeout, non-2xx status).
	ErrProvider = errors.New("llm provider error")
	// ErrEmptyPrompt is returned before any network call when the prompt is blank.
	ErrEmptyPrompt = errors.New("prompt is empty")
)
