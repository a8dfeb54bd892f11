// Package secrets fetches deployment secrets from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// Parameter names, relative to the configured prefix.
const (
	ParamPostgresDSN  = "postgres-dsn"
	ParamGatewayToken = "gateway-token"
	ParamJWTSecret    = "jwt-secret"
)

// ssmAPI is the subset of *ssm.Client the loader uses.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Loader reads SecureString parameters under a common prefix.
type Loader struct {
	api    ssmAPI
	prefix string
}

func NewLoader(api ssmAPI, prefix string) (*Loader, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("secrets: prefix is required")
	}
	return &Loader{api: api, prefix: prefix}, nil
}

// Get returns the decrypted value of prefix/name.
func (l *Loader) Get(ctx context.Context, name string) (string, error) {
	full := l.prefix + "/" + strings.TrimLeft(name, "/")
	withDecryption := true
	out, err := l.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &full,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", full, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q missing value", full)
	}
	return *out.Parameter.Value, nil
}

// Lookup is Get that treats a missing parameter as absent rather than an error.
func (l *Loader) Lookup(ctx context.Context, name string) (string, bool, error) {
	v, err := l.Get(ctx, name)
	if err != nil {
		var nf *ssmtypes.ParameterNotFound
		if errors.As(err, &nf) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Secrets are the values the relay may take from the parameter store.
type Secrets struct {
	PostgresDSN  string
	GatewayToken string
	JWTSecret    string
}

// LoadAll fetches every known parameter; absent ones stay empty.
func (l *Loader) LoadAll(ctx context.Context) (Secrets, error) {
	var s Secrets
	var err error
	if s.PostgresDSN, _, err = l.Lookup(ctx, ParamPostgresDSN); err != nil {
		return s, err
	}
	if s.GatewayToken, _, err = l.Lookup(ctx, ParamGatewayToken); err != nil {
		return s, err
	}
	if s.JWTSecret, _, err = l.Lookup(ctx, ParamJWTSecret); err != nil {
		return s, err
	}
	return s, nil
}
