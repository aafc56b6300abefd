package errors

import "strings"

// rateLimitMarkers identify provider rate-limit responses. The Gemini SDK
// surfaces these only in the error string, so matching is by substring.
var rateLimitMarkers = []string{
	"429",
	"RESOURCE_EXHAUSTED",
	"quota",
	"rate limit",
}

// serverErrorMarkers identify transient server-side provider failures.
var serverErrorMarkers = []string{
	"500",
	"502",
	"503",
	"504",
	"INTERNAL",
	"UNAVAILABLE",
	"DEADLINE_EXCEEDED",
	"connection reset",
	"connection refused",
	"EOF",
	"timeout",
	"timed out",
}

// IsRateLimitError reports whether an error is a provider rate-limit
// rejection.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), rateLimitMarkers)
}

// ClassifyProviderError maps an embedding or language-model provider error
// onto an error kind. Rate limits, server errors, and network failures are
// transient; anything else the provider rejected is permanent. Errors that
// already carry a kind pass through unchanged.
func ClassifyProviderError(message string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if IsRateLimitError(err) || containsAny(err.Error(), serverErrorMarkers) {
		return ProviderTransient(message, err)
	}
	return ProviderPermanent(message, err)
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
