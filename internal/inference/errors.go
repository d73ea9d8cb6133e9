package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ErrorKind categorizes provider failures.
type ErrorKind int

const (
	// KindInvalidKey indicates the API key is invalid or revoked.
	KindInvalidKey ErrorKind = iota
	// KindQuotaExceeded indicates the provider rate-limited the call.
	KindQuotaExceeded
	// KindNetwork indicates a connectivity problem or a provider server error.
	KindNetwork
	// KindBadRequest indicates the provider rejected the input.
	KindBadRequest
	// KindUnknown covers anything else.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid_key"
	case KindQuotaExceeded:
		return "quota"
	case KindNetwork:
		return "network_error"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// ProviderError is a classified failure from the hosted model.
type ProviderError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ClassifyError wraps err in a ProviderError. Context errors are returned as is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr.Code, apiErr.Message, err)
	}
	var apiVal genai.APIError
	if errors.As(err, &apiVal) {
		return classifyAPIError(apiVal.Code, apiVal.Message, err)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return &ProviderError{Kind: KindInvalidKey, Message: "API key is invalid or has been revoked", Err: err}

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &ProviderError{Kind: KindQuotaExceeded, Message: "API quota exceeded or rate limited", Err: err}

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return &ProviderError{Kind: KindNetwork, Message: "network error reaching the image model", Err: err}

	default:
		return &ProviderError{Kind: KindUnknown, Message: "image generation failed", Err: err}
	}
}

func classifyAPIError(code int, message string, err error) *ProviderError {
	switch code {
	case 400:
		return &ProviderError{Kind: KindBadRequest, Message: "request rejected by the image model", Err: err}
	case 401, 403:
		return &ProviderError{Kind: KindInvalidKey, Message: "API key is invalid, expired, or lacks permissions", Err: err}
	case 429:
		return &ProviderError{Kind: KindQuotaExceeded, Message: "API rate limit exceeded - try again later", Err: err}
	case 500, 502, 503, 504:
		return &ProviderError{Kind: KindNetwork, Message: "image model server error - try again later", Err: err}
	default:
		if message == "" {
			message = "image generation failed"
		}
		return &ProviderError{Kind: KindUnknown, Message: message, Err: err}
	}
}

// KindOf returns the kind of a ProviderError in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// ValidateKey makes a minimal text call to confirm the API key works.
func ValidateKey(ctx context.Context, models ContentGenerator) error {
	log.Debug().Msg("Validating API key with Gemini API")
	start := time.Now()
	resp, err := models.GenerateContent(ctx, ModelGemini25FlashImage, genai.Text("hi"), nil)
	if err != nil {
		return ClassifyError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return &ProviderError{Kind: KindUnknown, Message: "API returned empty response"}
	}
	log.Info().Dur("duration", time.Since(start)).Msg("API key validated successfully")
	return nil
}
