package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dojopulse/dojopulse/internal/pkg/env"
)

type callRequest struct {
	To     string `json:"to"`
	Script string `json:"script"`
	Voice  string `json:"voice,omitempty"`
}

type callResponse struct {
	CallID          string `json:"call_id"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
	Error           string `json:"error,omitempty"`
}

// HTTPPhoneGateway places AI voice calls through the configured gateway.
type HTTPPhoneGateway struct {
	client *http.Client
}

// NewHTTPPhoneGateway creates a phone gateway client. Call placement can
// take a while, so the timeout is generous.
func NewHTTPPhoneGateway() *HTTPPhoneGateway {
	return &HTTPPhoneGateway{client: &http.Client{Timeout: 2 * time.Minute}}
}

func (g *HTTPPhoneGateway) PlaceCall(ctx context.Context, toPhone, script string) (string, int, error) {
	if toPhone == "" {
		return "", 0, &SendError{Provider: "phone", Retryable: false, Err: fmt.Errorf("recipient phone number is empty")}
	}

	baseURL := env.GetEnv("PHONE_GATEWAY_URL", "")
	apiKey := env.GetEnv("PHONE_GATEWAY_API_KEY", "")
	if baseURL == "" || apiKey == "" {
		return "", 0, &SendError{Provider: "phone", Retryable: false, Err: fmt.Errorf("phone gateway is not configured")}
	}

	voice := env.GetEnv("PHONE_GATEWAY_VOICE", "")
	payload, err := json.Marshal(callRequest{To: toPhone, Script: script, Voice: voice})
	if err != nil {
		return "", 0, &SendError{Provider: "phone", Retryable: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/calls", bytes.NewReader(payload))
	if err != nil {
		return "", 0, &SendError{Provider: "phone", Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", 0, &SendError{Provider: "phone", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	var result callResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, &SendError{Provider: "phone", Retryable: true, Err: fmt.Errorf("failed to decode gateway response: %v", err)}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", 0, &SendError{Provider: "phone", Retryable: true, Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, result.Error)}
	case resp.StatusCode >= 400:
		return "", 0, &SendError{Provider: "phone", Retryable: false, Err: fmt.Errorf("gateway rejected call (%d): %s", resp.StatusCode, result.Error)}
	}

	return result.CallID, result.DurationSeconds, nil
}
