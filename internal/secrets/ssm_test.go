package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values map[string]string
	err    error
	asked  []string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = append(f.asked, *in.Name)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v}}, nil
}

func TestNewLoader_Validation(t *testing.T) {
	_, err := NewLoader(nil, "/booki")
	require.ErrorContains(t, err, "must not be nil")
	_, err = NewLoader(&fakeAPI{}, " / ")
	require.Error(t, err)
}

func TestGet_JoinsPrefix(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/booki/prod/postgres-dsn": "postgres://x"}}
	l, err := NewLoader(api, "/booki/prod/")
	require.NoError(t, err)

	v, err := l.Get(context.Background(), ParamPostgresDSN)
	require.NoError(t, err)
	require.Equal(t, "postgres://x", v)
	require.Equal(t, []string{"/booki/prod/postgres-dsn"}, api.asked)
}

func TestLoadAll_MissingIsEmpty(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/booki/gateway-token": "s3cret", "/booki/jwt-secret": "hmac"}}
	l, err := NewLoader(api, "/booki")
	require.NoError(t, err)

	s, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, s.PostgresDSN)
	require.Equal(t, "s3cret", s.GatewayToken)
	require.Equal(t, "hmac", s.JWTSecret)
}

func TestLoadAll_APIError(t *testing.T) {
	l, err := NewLoader(&fakeAPI{err: errors.New("access denied")}, "/booki")
	require.NoError(t, err)
	_, err = l.LoadAll(context.Background())
	require.ErrorContains(t, err, "access denied")
}
