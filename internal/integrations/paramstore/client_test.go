package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut   *ssm.GetParameterOutput
	getErr   error
	calls    int
	lastName string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.lastName = *in.Name
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func valueOut(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(v)}}
}

func TestGetParameter_HappyPathAndCache(t *testing.T) {
	api := &fakeAPI{getOut: valueOut(`{"token":"v"}`)}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /bruno/telegram ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"v"}`, v)
	require.Equal(t, "/bruno/telegram", api.lastName)

	_, err = client.GetParameter(context.Background(), "/bruno/telegram")
	require.NoError(t, err)
	require.Equal(t, 1, api.calls)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameter_ApiErrorNotCached(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
	_, _ = client.GetParameter(context.Background(), "p")
	require.Equal(t, 2, api.calls)
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	v, err := NewResolver(nil).Resolve(ctx, "plain-value")
	require.NoError(t, err)
	require.Equal(t, "plain-value", v)

	_, err = NewResolver(nil).Resolve(ctx, "ssm:/bruno/x")
	require.ErrorContains(t, err, "no parameter store")

	client, err := New(&fakeAPI{getOut: valueOut(`{"token":"sk-123"}`)})
	require.NoError(t, err)
	v, err = NewResolver(client).Resolve(ctx, "ssm:/bruno/openai")
	require.NoError(t, err)
	require.Equal(t, "sk-123", v)

	client, err = New(&fakeAPI{getOut: valueOut(" raw-secret\n")})
	require.NoError(t, err)
	v, err = NewResolver(client).Resolve(ctx, "ssm:/bruno/telegram")
	require.NoError(t, err)
	require.Equal(t, "raw-secret", v)

	client, err = New(&fakeAPI{getOut: valueOut(`{"other":"x"}`)})
	require.NoError(t, err)
	_, err = NewResolver(client).Resolve(ctx, "ssm:/bruno/empty")
	require.ErrorContains(t, err, "token is empty")

	client, err = New(&fakeAPI{getOut: valueOut(`{"broken`)})
	require.NoError(t, err)
	_, err = NewResolver(client).Resolve(ctx, "ssm:/bruno/broken")
	require.ErrorContains(t, err, "unmarshal")
}
