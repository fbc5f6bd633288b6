package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultResendEndpoint is the Resend send-email endpoint.
const DefaultResendEndpoint = "https://api.resend.com/emails"

// ResendClient is the Sender backed by the Resend API.
type ResendClient struct {
	apiKey     string
	from       From
	endpoint   string
	httpClient *http.Client
}

// NewResendClient returns a Sender that delivers email via Resend.
func NewResendClient(apiKey string, from From) *ResendClient {
	return &ResendClient{
		apiKey:   apiKey,
		from:     from,
		endpoint: DefaultResendEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithEndpoint points the client at a different URL. Used by tests.
func (c *ResendClient) WithEndpoint(url string) *ResendClient {
	c.endpoint = url
	return c
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
	// Resend reports failures either as a nested "error" object or as a flat
	// {name, message, statusCode} body depending on the endpoint version.
	Error *struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ─── HTTP SEND ────────────────────────────────────────────────────────────────

// Send posts msg to Resend and returns the message ID it assigns.
func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	bodyBytes, err := json.Marshal(resendRequest{
		From:    c.from.String(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("email: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: resend: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("%w: resend: read response: %w", ErrDelivery, err)
	}

	var parsed resendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("%w: resend: unmarshal response (status %d): %w", ErrDelivery, resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("%w: resend error %s: %s", ErrDelivery, parsed.Error.Name, parsed.Error.Message)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Message != "" {
			return "", fmt.Errorf("%w: resend error %s: %s", ErrDelivery, parsed.Name, parsed.Message)
		}
		return "", fmt.Errorf("%w: resend: unexpected status %d: %.200s", ErrDelivery, resp.StatusCode, string(respBytes))
	}

	return parsed.ID, nil
}
