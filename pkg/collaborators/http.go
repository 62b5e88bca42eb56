// Package collaborators provides HTTP-backed implementations of the external
// collaborator interfaces. Each call is a JSON POST against a configured
// service; the core stays agnostic of what answers on the other side.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stratumflow/stratum/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

// HTTPCollaborators implements every protocol collaborator against a single
// base URL. Endpoints follow a fixed layout: /query, /judge, /perform,
// /analyze, /tools/call, /scripts/run and /schedules.
type HTTPCollaborators struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTPCollaborators {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPCollaborators{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPCollaborators) Query(ctx context.Context, source string, query map[string]any) (map[string]any, error) {
	return h.post(ctx, "/query", map[string]any{"source": source, "query": query})
}

func (h *HTTPCollaborators) Judge(ctx context.Context, workflowContext map[string]any, policyMode string) (*protocol.Verdict, error) {
	raw, err := h.post(ctx, "/judge", map[string]any{
		"context":     workflowContext,
		"policy_mode": policyMode,
	})
	if err != nil {
		return nil, err
	}

	verdict := &protocol.Verdict{}
	if err := remarshal(raw, verdict); err != nil {
		return nil, fmt.Errorf("malformed judgment response: %w", err)
	}

	return verdict, nil
}

func (h *HTTPCollaborators) Perform(ctx context.Context, actionType string, params map[string]any) (*protocol.ActionResult, error) {
	raw, err := h.post(ctx, "/perform", map[string]any{
		"action_type": actionType,
		"params":      params,
	})
	if err != nil {
		return nil, err
	}

	result := &protocol.ActionResult{}
	if err := remarshal(raw, result); err != nil {
		return nil, fmt.Errorf("malformed action response: %w", err)
	}

	return result, nil
}

func (h *HTTPCollaborators) Analyze(ctx context.Context, analysis string, params map[string]any) (map[string]any, error) {
	return h.post(ctx, "/analyze", map[string]any{"analysis": analysis, "params": params})
}

func (h *HTTPCollaborators) Call(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (map[string]any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return h.post(ctx, "/tools/call", map[string]any{"tool": tool, "args": args})
}

func (h *HTTPCollaborators) Run(ctx context.Context, script string, input map[string]any) (map[string]any, error) {
	return h.post(ctx, "/scripts/run", map[string]any{"script": script, "input": input})
}

func (h *HTTPCollaborators) RegisterSchedule(ctx context.Context, id, cronExpr string, payload map[string]any) error {
	_, err := h.post(ctx, "/schedules", map[string]any{
		"id":      id,
		"cron":    cronExpr,
		"payload": payload,
	})

	return err
}

func (h *HTTPCollaborators) RegisterSubscription(ctx context.Context, id, eventType string, payload map[string]any) error {
	_, err := h.post(ctx, "/subscriptions", map[string]any{
		"id":         id,
		"event_type": eventType,
		"payload":    payload,
	})

	return err
}

func (h *HTTPCollaborators) Unregister(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.baseURL+"/schedules/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}

	return nil
}

func (h *HTTPCollaborators) post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("collaborator returned status %d: %s", resp.StatusCode, truncate(data))
	}

	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("malformed collaborator response: %w", err)
	}

	return result, nil
}

func remarshal(raw map[string]any, target any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}

func truncate(data []byte) string {
	const limit = 200

	if len(data) > limit {
		return string(data[:limit]) + "..."
	}

	return string(data)
}
