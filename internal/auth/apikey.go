// Package auth resolves the model API key and issues the session tokens that
// protect the generation routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// ErrNoAPIKey is returned when no key source is configured.
var ErrNoAPIKey = errors.New("API key not found: set GEMINI_API_KEY or SSM_API_KEY_PARAM")

// ParameterGetter is the part of the SSM client used here; *ssm.Client satisfies it.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// GetAPIKey retrieves the Gemini API key.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. SecureString parameter named by SSM_API_KEY_PARAM (needs a non-nil getter)
func GetAPIKey(ctx context.Context, params ParameterGetter) (string, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	name := os.Getenv("SSM_API_KEY_PARAM")
	if name == "" || params == nil {
		return "", ErrNoAPIKey
	}

	start := time.Now()
	out, err := params.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read API key from SSM %s: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty: %w", name, ErrNoAPIKey)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}
