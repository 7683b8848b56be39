package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RoundTrip(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := NewClient(ts.URL + "/")
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.Connected)

	kis, err := c.Interactions(ctx)
	require.NoError(t, err)
	assert.Len(t, kis, 2)

	events, err := c.Events(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	res, err := c.Ask(ctx, ExchangeRequest{Interaction: "measurement"})
	require.NoError(t, err)
	assert.Equal(t, "ask-measurement", res.Interaction)

	_, err = c.Post(ctx, ExchangeRequest{Interaction: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_interaction")

	require.NoError(t, c.Register(ctx))
}

func TestNewClient_BareAddress(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8091", NewClient("127.0.0.1:8091").baseURL)
}
