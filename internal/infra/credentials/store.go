package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	ProviderGemini   = "gemini"
	ProviderSeedream = "seedream"
)

// ParameterAPI is the slice of the SSM client the store needs.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Store resolves provider API keys from SSM Parameter Store SecureString
// parameters. Values are cached for the life of the process.
type Store struct {
	api   ParameterAPI
	names map[string]string

	mu    sync.Mutex
	cache map[string]string
}

// NewStore maps provider names to parameter names. Providers without a
// parameter name resolve to an empty key.
func NewStore(api ParameterAPI, names map[string]string) *Store {
	cp := make(map[string]string, len(names))
	for provider, name := range names {
		if strings.TrimSpace(name) != "" {
			cp[provider] = strings.TrimSpace(name)
		}
	}
	return &Store{api: api, names: cp, cache: map[string]string{}}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) SeedreamAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderSeedream)
}

// Resolve prefers an explicit key from the environment and falls back to
// Parameter Store.
func (s *Store) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	if s == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

// Token returns the decrypted key for provider, or "" when no parameter is
// configured or the parameter does not exist.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	name, ok := s.names[provider]
	if !ok || s.api == nil {
		return "", nil
	}

	s.mu.Lock()
	cached, hit := s.cache[provider]
	s.mu.Unlock()
	if hit {
		return cached, nil
	}

	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}

	var token string
	if out.Parameter != nil {
		token = strings.TrimSpace(aws.ToString(out.Parameter.Value))
	}

	s.mu.Lock()
	s.cache[provider] = token
	s.mu.Unlock()
	return token, nil
}
