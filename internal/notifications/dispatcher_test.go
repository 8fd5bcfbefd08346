package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a scriptable Transport for unit tests.
type fakeTransport struct {
	configured bool
	response   []byte
	err        error
	sent       []OutboundMessage
}

func (f *fakeTransport) Configured() bool { return f.configured }

func (f *fakeTransport) Send(_ context.Context, msg OutboundMessage) ([]byte, error) {
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

var testEmail = RenderedEmail{Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi"}

func TestDispatcher_Dispatch(t *testing.T) {
	transport := &fakeTransport{configured: true, response: []byte(`{"id":"msg-1"}`)}
	d := NewDispatcher(transport)

	result, err := d.Dispatch(context.Background(), "ana@example.com", testEmail, false)
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.JSONEq(t, `{"id":"msg-1"}`, string(result.ProviderResponse))
	assert.Nil(t, result.Preview)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "ana@example.com", transport.sent[0].To)
	assert.Equal(t, "Hi", transport.sent[0].Subject)
}

func TestDispatcher_DryRunReturnsPreview(t *testing.T) {
	transport := &fakeTransport{configured: true}
	d := NewDispatcher(transport)

	result, err := d.Dispatch(context.Background(), "ana@example.com", testEmail, true)
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	require.NotNil(t, result.Preview)
	assert.Equal(t, "ana@example.com", result.Preview.To)
	assert.Equal(t, testEmail, result.Preview.Email)
	assert.Empty(t, transport.sent)
}

func TestDispatcher_UnconfiguredTransportReturnsPreview(t *testing.T) {
	transport := &fakeTransport{configured: false}
	d := NewDispatcher(transport)

	result, err := d.Dispatch(context.Background(), "ana@example.com", testEmail, false)
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	require.NotNil(t, result.Preview)
	assert.Empty(t, transport.sent)
}

func TestDispatcher_NilTransportReturnsPreview(t *testing.T) {
	d := NewDispatcher(nil)

	result, err := d.Dispatch(context.Background(), "ana@example.com", testEmail, false)
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	require.NotNil(t, result.Preview)
}

func TestDispatcher_TransportError(t *testing.T) {
	transport := &fakeTransport{configured: true, err: errors.New("provider down")}
	d := NewDispatcher(transport)

	_, err := d.Dispatch(context.Background(), "ana@example.com", testEmail, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestDispatcher_NonJSONProviderResponse(t *testing.T) {
	transport := &fakeTransport{configured: true, response: []byte("accepted")}
	d := NewDispatcher(transport)

	result, err := d.Dispatch(context.Background(), "ana@example.com", testEmail, false)
	require.NoError(t, err)

	// body is wrapped so the result still marshals as valid JSON
	var s string
	require.NoError(t, json.Unmarshal(result.ProviderResponse, &s))
	assert.Equal(t, "accepted", s)
}
