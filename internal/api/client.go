package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP client for the collector's read API, used by the
// CLI query commands.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches collector liveness.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.getJSON(ctx, "/status", &resp)
	return resp, err
}

// Devices fetches the fleet overview.
func (c *Client) Devices(ctx context.Context) (DevicesResponse, error) {
	var resp DevicesResponse
	err := c.getJSON(ctx, "/devices", &resp)
	return resp, err
}

// Device fetches one device's joined view.
func (c *Client) Device(ctx context.Context, id string) (DeviceResponse, error) {
	var resp DeviceResponse
	err := c.getJSON(ctx, "/device?id="+url.QueryEscape(id), &resp)
	return resp, err
}

// Trend fetches one device's latency history.
func (c *Client) Trend(ctx context.Context, id string) (TrendResponse, error) {
	var resp TrendResponse
	err := c.getJSON(ctx, "/trend?id="+url.QueryEscape(id), &resp)
	return resp, err
}

// Incidents fetches the current incident list.
func (c *Client) Incidents(ctx context.Context) (IncidentsResponse, error) {
	var resp IncidentsResponse
	err := c.getJSON(ctx, "/incidents", &resp)
	return resp, err
}

// Explain forwards a question about a device and returns the explainer's
// raw answer.
func (c *Client) Explain(ctx context.Context, req ExplainRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.postJSON(ctx, "/explain", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return err
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(body))
	if msg != "" {
		return fmt.Errorf("request failed: %s: %s", res.Status, msg)
	}
	return fmt.Errorf("request failed: %s", res.Status)
}
