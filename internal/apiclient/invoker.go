// Package apiclient performs apiCall steps against external systems.
package apiclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/model"
)

// Invoker executes apiCall step configs over HTTP. Endpoint, header and
// string body values may contain {path} placeholders resolved against the
// session variables before the request is sent.
type Invoker struct {
	client *resty.Client
}

// Config bounds the invoker's HTTP behavior.
type Config struct {
	Timeout time.Duration
	Debug   bool
}

// New creates an HTTP invoker. Per-call retries and backoff are the
// runner's policy, not the client's.
func New(cfg Config) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetDebug(cfg.Debug)
	return &Invoker{client: client}
}

// Call performs one external request and returns the decoded JSON body.
// Non-2xx responses are errors: the runner decides whether to retry or take
// the authored failure branch.
func (i *Invoker) Call(ctx context.Context, cfg model.APIConfig, vars map[string]any) (map[string]any, error) {
	endpoint := engine.Interpolate(cfg.Endpoint, vars)

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = engine.Interpolate(v, vars)
	}

	body := renderBody(cfg.Body, vars)

	response := map[string]any{}
	req := i.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&response)
	if len(body) > 0 {
		req.SetBody(body)
	}

	resp, err := req.Execute(cfg.Method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("external call failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("external call returned %s", resp.Status())
	}
	return response, nil
}

// renderBody interpolates string leaves of the authored body template.
func renderBody(template map[string]any, vars map[string]any) map[string]any {
	if len(template) == 0 {
		return nil
	}
	out := make(map[string]any, len(template))
	for k, v := range template {
		switch t := v.(type) {
		case string:
			out[k] = engine.Interpolate(t, vars)
		case map[string]any:
			out[k] = renderBody(t, vars)
		default:
			out[k] = v
		}
	}
	return out
}
