package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
)

func TestNewClient_Endpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultEndpoint},
		{"http://broker:8280/rest", "http://broker:8280/rest/"},
		{"http://broker:8280/rest/", "http://broker:8280/rest/"},
	}
	for _, tt := range tests {
		if got := NewClient(tt.in, testKB, time.Second).Endpoint(); got != tt.want {
			t.Errorf("NewClient(%q).Endpoint() = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestClient_Headers(t *testing.T) {
	var gotKB, gotKI, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKB = r.Header.Get(HeaderKnowledgeBaseID)
		gotKI = r.Header.Get(HeaderKnowledgeInteractionID)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, testKB, time.Second)

	resp, err := c.DeleteInteraction(context.Background(), "ki-9")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, testKB, gotKB)
	assert.Equal(t, "ki-9", gotKI)
	assert.Empty(t, gotType)

	_, err = c.RegisterKnowledgeBase(context.Background(), RegisterKnowledgeBaseRequest{KnowledgeBaseID: testKB})
	require.NoError(t, err)
	assert.Empty(t, gotKI)
	assert.Equal(t, "application/json", gotType)
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewClient(server.URL, testKB, time.Second).ListInteractions(context.Background())
	require.Error(t, err)
	assert.True(t, kerrors.IsTransport(err))
}

func TestResponse_Message(t *testing.T) {
	assert.Equal(t, "gone", (&Response{Body: []byte(`{"message":"gone"}`)}).Message())
	assert.Equal(t, "plain text", (&Response{Body: []byte("plain text\n")}).Message())
	assert.Equal(t, "", (&Response{}).Message())
}

func TestResponse_Decode(t *testing.T) {
	var res AskResult
	require.NoError(t, (&Response{}).Decode(&res))
	assert.Nil(t, res.BindingSet)

	require.NoError(t, (&Response{Body: []byte(`{"bindingSet":[{"a":"<http://x>"}]}`)}).Decode(&res))
	assert.Equal(t, "<http://x>", res.BindingSet[0]["a"])

	assert.Error(t, (&Response{Body: []byte(`{`)}).Decode(&res))
}

func TestExchangeInfo_Failed(t *testing.T) {
	assert.True(t, ExchangeInfo{Status: "FAILED"}.Failed())
	assert.True(t, ExchangeInfo{Status: "failed"}.Failed())
	assert.False(t, ExchangeInfo{Status: "SUCCEEDED"}.Failed())
}
