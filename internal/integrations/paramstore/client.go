package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// RefPrefix marks a configuration value that must be read from SSM, as in
// TELEGRAM_TOKEN=ssm:/bruno/telegram-token.
const RefPrefix = "ssm:"

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads decrypted parameters from SSM and caches them for the process
// lifetime.
type Client struct {
	api ssmAPI

	mu    sync.Mutex
	cache map[string]string
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, cache: make(map[string]string)}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	c.mu.Lock()
	if v, ok := c.cache[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string]string)
	}
	c.cache[name] = *out.Parameter.Value
	c.mu.Unlock()
	return *out.Parameter.Value, nil
}

// tokenPayload is the JSON shape used for secrets stored as {"token": "..."}.
type tokenPayload struct {
	Token string `json:"token"`
}

// Resolver expands "ssm:" references in configuration values.
type Resolver struct {
	getter Getter
}

// NewResolver returns a Resolver backed by getter. A nil getter leaves plain
// values untouched and rejects references.
func NewResolver(getter Getter) *Resolver {
	return &Resolver{getter: getter}
}

// Resolve returns value unchanged unless it starts with RefPrefix, in which
// case the named parameter is fetched. Parameters holding a JSON object with
// a "token" field resolve to that field.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, RefPrefix) {
		return value, nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(value, RefPrefix))
	if r == nil || r.getter == nil {
		return "", fmt.Errorf("paramstore: no parameter store configured for %q", name)
	}
	raw, err := r.getter.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(trimmed), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal %q as JSON: %w", name, err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("paramstore: token is empty in %q", name)
	}
	return tp.Token, nil
}
