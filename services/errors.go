package services

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

type ErrorKind string

const (
	ErrValidation         ErrorKind = "validation"
	ErrConfiguration      ErrorKind = "configuration"
	ErrCredential         ErrorKind = "credential"
	ErrQuota              ErrorKind = "quota"
	ErrServiceUnavailable ErrorKind = "service_unavailable"
	ErrUnknown            ErrorKind = "unknown"
)

// GenerationError is the user-facing shape of any failure inside a
// generation or classification flow. Message is safe to show as-is.
type GenerationError struct {
	Kind    ErrorKind
	Message string
	Raw     error
}

func (e *GenerationError) Error() string {
	if e.Raw != nil {
		return e.Message + ": " + e.Raw.Error()
	}
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Raw
}

func NewValidationError(message string) *GenerationError {
	return &GenerationError{Kind: ErrValidation, Message: message}
}

// substring rules, scanned in order over the lowercased message. The first
// match wins, so "quota" beats "503" when both appear.
var normalizeRules = []struct {
	kind     ErrorKind
	message  string
	patterns []string
}{
	{ErrConfiguration, "The AI service is misconfigured, please contact support", []string{"api key not valid"}},
	{ErrCredential, "Your access key was not found or is invalid, please select it again", []string{"requested entity was not found"}},
	{ErrQuota, "The service is under high demand right now, please retry in a bit", []string{"quota"}},
	{ErrServiceUnavailable, "The AI service is temporarily unavailable, please try again", []string{"503", "unavailable"}},
	{ErrValidation, "This input could not be processed, please try a different photo", []string{"invalid argument", "request was blocked"}},
}

// NormalizeGenerationError maps a raw service failure to the fixed taxonomy.
// Messages are matched by substring; when nothing matches, a structured
// genai API error code is consulted before falling back to unknown.
func NormalizeGenerationError(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var already *GenerationError
	if errors.As(err, &already) {
		return already
	}

	message := strings.ToLower(err.Error())
	for _, rule := range normalizeRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(message, pattern) {
				return &GenerationError{Kind: rule.kind, Message: rule.message, Raw: err}
			}
		}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return &GenerationError{Kind: ErrQuota, Message: "The service is under high demand right now, please retry in a bit", Raw: err}
		case 503:
			return &GenerationError{Kind: ErrServiceUnavailable, Message: "The AI service is temporarily unavailable, please try again", Raw: err}
		}
	}

	return &GenerationError{Kind: ErrUnknown, Message: "Something unexpected went wrong, please try again", Raw: err}
}
