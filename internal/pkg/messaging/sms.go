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

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// HTTPSMSGateway sends SMS through the configured gateway's JSON API.
type HTTPSMSGateway struct {
	client *http.Client
}

// NewHTTPSMSGateway creates an SMS gateway client.
func NewHTTPSMSGateway() *HTTPSMSGateway {
	return &HTTPSMSGateway{client: &http.Client{Timeout: 15 * time.Second}}
}

func (g *HTTPSMSGateway) SendSMS(ctx context.Context, toPhone, body string) (string, error) {
	if toPhone == "" {
		return "", &SendError{Provider: "sms", Retryable: false, Err: fmt.Errorf("recipient phone number is empty")}
	}

	baseURL := env.GetEnv("SMS_GATEWAY_URL", "")
	apiKey := env.GetEnv("SMS_GATEWAY_API_KEY", "")
	if baseURL == "" || apiKey == "" {
		return "", &SendError{Provider: "sms", Retryable: false, Err: fmt.Errorf("SMS gateway is not configured")}
	}

	payload, err := json.Marshal(smsRequest{To: toPhone, Body: body})
	if err != nil {
		return "", &SendError{Provider: "sms", Retryable: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", &SendError{Provider: "sms", Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &SendError{Provider: "sms", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	var result smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &SendError{Provider: "sms", Retryable: true, Err: fmt.Errorf("failed to decode gateway response: %v", err)}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", &SendError{Provider: "sms", Retryable: true, Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, result.Error)}
	case resp.StatusCode >= 400:
		return "", &SendError{Provider: "sms", Retryable: false, Err: fmt.Errorf("gateway rejected message (%d): %s", resp.StatusCode, result.Error)}
	}

	return result.MessageID, nil
}
