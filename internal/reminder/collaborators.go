package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/salesdock/automation/internal/util"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxErrorBodyBytes     = 512
)

// RenderRequest carries everything the template collaborator needs to produce
// follow-up copy.
type RenderRequest struct {
	SequenceNumber  int        `json:"sequence_number"`
	MaxCount        int        `json:"max_count"`
	OriginalSubject string     `json:"original_subject"`
	OriginalBody    string     `json:"original_body"`
	ContactName     string     `json:"contact_name"`
	Deadline        *time.Time `json:"deadline,omitempty"`
}

// RenderResult is the rendered follow-up content.
type RenderResult struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"html_body"`
}

// Renderer produces follow-up subject and body from the original message.
type Renderer interface {
	RenderFollowUp(ctx context.Context, req RenderRequest) (RenderResult, error)
}

// Mailer delivers a rendered follow-up and returns the provider message ID.
type Mailer interface {
	Send(ctx context.Context, to, subject, body, htmlBody string) (string, error)
}

// DeliveryError reports a failed send. The scheduler reacts by leaving
// sentCount unchanged and relying on the claim hold for the retry.
// To is pre-masked so the error can go straight into logs.
type DeliveryError struct {
	To         string
	StatusCode int
	err        error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return fmt.Sprintf("reminder: deliver to %s: %v", e.To, e.err)
	}
	return fmt.Sprintf("reminder: deliver to %s: status=%d", e.To, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// HTTPRenderer calls the template-rendering HTTP collaborator.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPRenderer constructs a renderer against the given endpoint.
func NewHTTPRenderer(endpoint string) *HTTPRenderer {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	return &HTTPRenderer{endpoint: endpoint, client: &http.Client{}, timeout: defaultRequestTimeout}
}

// RenderFollowUp posts the render request and decodes the rendered content.
func (r *HTTPRenderer) RenderFollowUp(ctx context.Context, req RenderRequest) (RenderResult, error) {
	if r == nil || r.client == nil {
		return RenderResult{}, errors.New("reminder: renderer not initialized")
	}
	body, status, errCall := postJSON(ctx, r.client, r.timeout, r.endpoint, req)
	if errCall != nil {
		return RenderResult{}, fmt.Errorf("reminder: render: %w", errCall)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return RenderResult{}, fmt.Errorf("reminder: render: non-2xx status=%d body=%s", status, summarizeBody(body))
	}
	var out RenderResult
	if errUnmarshal := json.Unmarshal(body, &out); errUnmarshal != nil {
		return RenderResult{}, fmt.Errorf("reminder: render: %w", errUnmarshal)
	}
	return out, nil
}

// HTTPMailer calls the delivery HTTP collaborator.
type HTTPMailer struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPMailer constructs a mailer against the given endpoint.
func NewHTTPMailer(endpoint string) *HTTPMailer {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	return &HTTPMailer{endpoint: endpoint, client: &http.Client{}, timeout: defaultRequestTimeout}
}

// Send posts the message for delivery and returns the provider message ID.
func (m *HTTPMailer) Send(ctx context.Context, to, subject, body, htmlBody string) (string, error) {
	masked := util.MaskEmail(to)
	if m == nil || m.client == nil {
		return "", &DeliveryError{To: masked, err: errors.New("mailer not initialized")}
	}
	respBody, status, errCall := postJSON(ctx, m.client, m.timeout, m.endpoint, map[string]string{
		"to":        to,
		"subject":   subject,
		"body":      body,
		"html_body": htmlBody,
	})
	if errCall != nil {
		return "", &DeliveryError{To: masked, err: errCall}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", &DeliveryError{To: masked, StatusCode: status, err: fmt.Errorf("non-2xx body=%s", summarizeBody(respBody))}
	}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if errUnmarshal := json.Unmarshal(respBody, &out); errUnmarshal != nil {
		return "", &DeliveryError{To: masked, StatusCode: status, err: errUnmarshal}
	}
	return out.MessageID, nil
}

func postJSON(ctx context.Context, client *http.Client, timeout time.Duration, endpoint string, payload any) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, 0, errMarshal
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if errReq != nil {
		return nil, 0, errReq
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errResp := client.Do(req)
	if errResp != nil {
		return nil, 0, errResp
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, resp.StatusCode, errRead
	}
	return body, resp.StatusCode, nil
}

func summarizeBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if len(trimmed) > maxErrorBodyBytes {
		return string(trimmed[:maxErrorBodyBytes]) + "...(truncated)"
	}
	return string(trimmed)
}
