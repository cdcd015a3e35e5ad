// Package providers holds the transport implementations behind the
// dispatcher's channel interfaces. Remote channels go through the platform's
// notification gateway; the local channel talks to the device bridge.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	domainErrors "github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
)

// GatewayConfig configures the notification gateway client
type GatewayConfig struct {
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	Timeout      time.Duration `json:"timeout"`
	RateLimitRPS int           `json:"rate_limit_rps"`
}

// Gateway sends SMS, calls, push messages and advocate notifications
// through the platform's notification gateway. One client covers all
// remote channels; per-channel fallback stays in the dispatcher.
type Gateway struct {
	config  GatewayConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewGateway creates a gateway client with conservative defaults
func NewGateway(config GatewayConfig) *Gateway {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 20
	}
	return &Gateway{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.RateLimitRPS*2),
	}
}

// SendSMS delivers a text message
func (g *Gateway) SendSMS(ctx context.Context, number, text string) error {
	return g.post(ctx, "/v1/sms", "sms", map[string]interface{}{
		"to":   number,
		"text": text,
	})
}

// PlaceCall starts an automated voice call
func (g *Gateway) PlaceCall(ctx context.Context, number string) error {
	return g.post(ctx, "/v1/calls", "call", map[string]interface{}{
		"to": number,
	})
}

// SendPush delivers a push notification to a registered device target
func (g *Gateway) SendPush(ctx context.Context, target, title, body string) error {
	return g.post(ctx, "/v1/push", "push", map[string]interface{}{
		"target": target,
		"title":  title,
		"body":   body,
	})
}

// NotifyAdvocate reaches the elder rights advocate service. A separate
// endpoint and recipient pool from the caregiver-facing channels.
func (g *Gateway) NotifyAdvocate(ctx context.Context, subjectID, alertID uuid.UUID, message string, urgency emergency.Urgency) error {
	return g.post(ctx, "/v1/advocate/notifications", "elder_rights_advocate", map[string]interface{}{
		"subject_id": subjectID.String(),
		"alert_id":   alertID.String(),
		"message":    message,
		"urgency":    string(urgency),
	})
}

// Ping checks whether a caregiver's channel answers the heartbeat
func (g *Gateway) Ping(ctx context.Context, caregiverID uuid.UUID) error {
	return g.post(ctx, "/v1/heartbeat", "heartbeat", map[string]interface{}{
		"caregiver_id": caregiverID.String(),
	})
}

func (g *Gateway) post(ctx context.Context, path, channel string, payload map[string]interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return domainErrors.NewTransportError(channel, "rate limit wait aborted").WithCause(err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domainErrors.NewInternalError("encode gateway payload").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return domainErrors.NewInternalError("build gateway request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domainErrors.NewTransportError(channel, "gateway unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domainErrors.NewTransportError(channel, fmt.Sprintf("gateway returned %d", resp.StatusCode))
	}
	return nil
}
