package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

// WebGatewayAdapter sends through an unofficial web-client style gateway
// (used for WeChat). These integrations carry ban risk, which is why they are
// flagged as the web transport method and throttled harder by the
// auto-response guard.
type WebGatewayAdapter struct {
	baseURL    string
	authToken  string
	channel    model.Channel
	httpClient *http.Client
}

func NewWebGatewayAdapter(baseURL, authToken string, ch model.Channel) *WebGatewayAdapter {
	return &WebGatewayAdapter{
		baseURL:   baseURL,
		authToken: authToken,
		channel:   ch,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (a *WebGatewayAdapter) Channel() model.Channel { return a.channel }
func (a *WebGatewayAdapter) TransportMethod() model.TransportMethod { return model.TransportWeb }

func (a *WebGatewayAdapter) Send(ctx context.Context, contact, content string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"to":      contact,
		"content": content,
	})
	if err != nil {
		return "", appErrors.NewTransportError(string(a.channel), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", appErrors.NewTransportError(string(a.channel), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", appErrors.NewTransportError(string(a.channel), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", appErrors.NewAuthError(string(a.channel), fmt.Errorf("gateway returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", appErrors.NewRateLimited(string(a.channel), 5*time.Minute, fmt.Errorf("gateway returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest:
		body, _ := io.ReadAll(resp.Body)
		return "", appErrors.NewValidationError(string(a.channel), string(body))
	case resp.StatusCode != http.StatusOK:
		return "", appErrors.NewTransportError(string(a.channel), fmt.Errorf("gateway returned %d", resp.StatusCode))
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", appErrors.NewTransportError(string(a.channel), err)
	}
	return result.MessageID, nil
}

var _ Adapter = (*WebGatewayAdapter)(nil)
