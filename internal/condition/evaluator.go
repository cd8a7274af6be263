// Package condition calls the external predicate-evaluation collaborator for
// data-condition trigger rules.
package condition

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

	"gorm.io/datatypes"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxErrorBodyBytes     = 512
)

// Result is the outcome of one predicate evaluation.
//
// PeriodKey is stable for the same logical period (the collaborator buckets by
// date or similar), which is what lets the dispatcher's idempotency key stop a
// persistently-true condition from re-firing every tick.
type Result struct {
	Matched         bool   `json:"matched"`
	MatchedRowCount int    `json:"matched_row_count"`
	PeriodKey       string `json:"period_key"`
}

// Evaluator evaluates a condition spec against a tenant's data.
type Evaluator interface {
	Evaluate(ctx context.Context, spec datatypes.JSON, tenantID uint64) (Result, error)
}

// EvaluationError reports a failed collaborator call. The trigger evaluator
// treats it as "not matched this tick" and leaves the rule untouched so the
// condition is retried next tick.
type EvaluationError struct {
	TenantID   uint64
	StatusCode int
	err        error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return fmt.Sprintf("condition: evaluate (tenant=%d): %v", e.TenantID, e.err)
	}
	return fmt.Sprintf("condition: evaluate (tenant=%d): status=%d", e.TenantID, e.StatusCode)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// HTTPEvaluator calls a predicate-evaluation HTTP service.
type HTTPEvaluator struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPEvaluator constructs an evaluator against the given endpoint.
func NewHTTPEvaluator(endpoint string) *HTTPEvaluator {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	return &HTTPEvaluator{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  defaultRequestTimeout,
	}
}

// Evaluate posts the condition spec and decodes the match result.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, spec datatypes.JSON, tenantID uint64) (Result, error) {
	if e == nil || e.client == nil {
		return Result{}, &EvaluationError{TenantID: tenantID, err: errors.New("evaluator not initialized")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(spec) == 0 {
		return Result{}, &EvaluationError{TenantID: tenantID, err: errors.New("empty condition spec")}
	}

	payload, errMarshal := json.Marshal(map[string]any{
		"tenant_id": tenantID,
		"condition": json.RawMessage(spec),
	})
	if errMarshal != nil {
		return Result{}, &EvaluationError{TenantID: tenantID, err: errMarshal}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(reqCtx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return Result{}, &EvaluationError{TenantID: tenantID, err: errReq}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errResp := e.client.Do(req)
	if errResp != nil {
		return Result{}, &EvaluationError{TenantID: tenantID, err: errResp}
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return Result{}, &EvaluationError{TenantID: tenantID, StatusCode: resp.StatusCode, err: errRead}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, &EvaluationError{
			TenantID:   tenantID,
			StatusCode: resp.StatusCode,
			err:        fmt.Errorf("non-2xx status=%d body=%s", resp.StatusCode, summarizeBody(body)),
		}
	}

	var out Result
	if errUnmarshal := json.Unmarshal(body, &out); errUnmarshal != nil {
		return Result{}, &EvaluationError{TenantID: tenantID, StatusCode: resp.StatusCode, err: errUnmarshal}
	}
	return out, nil
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
