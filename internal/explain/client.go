// Package explain builds and sends requests to the external explanation
// service. The service's answer is opaque; it is passed through to the
// caller as raw JSON.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wmnmon/internal/model"
)

// Client is a thin HTTP client for the explainer endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Request carries one device question plus that device's current state.
type Request struct {
	DeviceID string
	Raw      *model.MetricsRecord
	Analysis *model.AnalysisRecord
	Question string
}

// payload is the wire shape the explainer expects.
type payload struct {
	Analysis analysisBody `json:"analysis"`
}

type analysisBody struct {
	DeviceID string                `json:"device_id"`
	Raw      *model.MetricsRecord  `json:"raw,omitempty"`
	Analysis *model.AnalysisRecord `json:"analysis,omitempty"`
	Question string                `json:"question"`
}

// Ask posts the question and returns the service's raw JSON response.
// Non-2xx statuses, non-JSON bodies, timeouts, and connection failures all
// come back as errors; none of them may disturb ingestion.
func (c *Client) Ask(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("explainer base URL not configured")
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("question is empty")
	}

	body, err := json.Marshal(payload{Analysis: analysisBody{
		DeviceID: req.DeviceID,
		Raw:      req.Raw,
		Analysis: req.Analysis,
		Question: req.Question,
	}})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/explain", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("explainer request: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("explainer response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(resBody))
		if msg != "" {
			return nil, fmt.Errorf("explainer failed: %s: %s", res.Status, msg)
		}
		return nil, fmt.Errorf("explainer failed: %s", res.Status)
	}

	if !json.Valid(resBody) {
		return nil, fmt.Errorf("explainer returned non-JSON body")
	}
	return json.RawMessage(resBody), nil
}
