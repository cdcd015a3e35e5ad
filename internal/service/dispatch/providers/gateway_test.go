package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
)

func TestGateway_SendSMS(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sms", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	g := NewGateway(GatewayConfig{BaseURL: server.URL, APIKey: "test-key"})

	err := g.SendSMS(context.Background(), "+15550100", "check on your family member")
	require.NoError(t, err)
	assert.Equal(t, "+15550100", got["to"])
}

func TestGateway_ServerErrorIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	g := NewGateway(GatewayConfig{BaseURL: server.URL})

	err := g.PlaceCall(context.Background(), "+15550100")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeTransport))
	assert.True(t, domainErrors.IsRetryable(err))
}

func TestGateway_UnreachableIsTransportError(t *testing.T) {
	g := NewGateway(GatewayConfig{BaseURL: "http://127.0.0.1:1"})

	err := g.SendPush(context.Background(), "device-token", "Alert", "body")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeTransport))
}

func TestGateway_NotifyAdvocateCarriesUrgency(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/advocate/notifications", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	g := NewGateway(GatewayConfig{BaseURL: server.URL})

	err := g.NotifyAdvocate(context.Background(), uuid.New(), uuid.New(), "all channels failed", emergency.UrgencyImmediate)
	require.NoError(t, err)
	assert.Equal(t, "IMMEDIATE", got["urgency"])
}

func TestDeviceBridge_NeverFailsAndBoundsPending(t *testing.T) {
	bridge := NewDeviceBridge(3, nil)

	for i := 0; i < 5; i++ {
		bridge.ShowLocalNotification("Safety Alert", "details")
	}

	pending := bridge.Drain()
	assert.Len(t, pending, 3)
	assert.Empty(t, bridge.Drain())
}
