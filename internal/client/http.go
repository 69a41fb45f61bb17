package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
)

// ActorHeader carries the acting user to the server.
const ActorHeader = "X-Actor"

// HTTPClient implements GateClient using the stagegate HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
}

var _ GateClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// WithActor sets the actor recorded as evaluated_by on evaluations.
func (c *HTTPClient) WithActor(actor string) *HTTPClient {
	c.actor = actor
	return c
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func projectPath(id string) string {
	return "/v1/projects/" + url.PathEscape(id)
}

// --- Gate evaluation ---

func (c *HTTPClient) GateStatus(ctx context.Context, projectID string, dryRun bool) (*gates.StageReport, error) {
	path := projectPath(projectID) + "/gate-status"
	if dryRun {
		path += "?dry_run=true"
	}
	var report gates.StageReport
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CanAdvance is derived from the blockers endpoint, which evaluates every
// blocking gate and records one automatic evaluation per gate.
func (c *HTTPClient) CanAdvance(ctx context.Context, projectID string) (*CanAdvanceResponse, error) {
	b, err := c.Blockers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &CanAdvanceResponse{ProjectID: b.ProjectID, StageID: b.StageID, CanAdvance: b.CanAdvance}, nil
}

func (c *HTTPClient) Blockers(ctx context.Context, projectID string) (*BlockersResponse, error) {
	var resp BlockersResponse
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/blockers", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	path := projectPath(req.ProjectID) + "/gates/" + url.PathEscape(req.GateKey) + "/evaluate"
	if req.DryRun {
		path += "?dry_run=true"
	}
	body := map[string]string{}
	if req.EvaluationType != "" {
		body["evaluation_type"] = string(req.EvaluationType)
	}
	if req.EvaluatedBy != "" {
		ctx = withActor(ctx, req.EvaluatedBy)
	}
	var resp EvaluateResponse
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ListEvaluations(ctx context.Context, req *ListEvaluationsRequest) ([]*model.Evaluation, error) {
	q := url.Values{}
	if req.GateID != "" {
		q.Set("gate_id", req.GateID)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	path := projectPath(req.ProjectID) + "/evaluations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Evaluations []*model.Evaluation `json:"evaluations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Evaluations, nil
}

// --- Configuration ---

func (c *HTTPClient) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := c.doJSON(ctx, http.MethodGet, projectPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) ListStages(ctx context.Context) ([]*model.Stage, error) {
	var resp struct {
		Stages []*model.Stage `json:"stages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stages, nil
}

func (c *HTTPClient) ListGates(ctx context.Context, stageID string, activeOnly bool) ([]*model.Gate, error) {
	path := "/v1/stages/" + url.PathEscape(stageID) + "/gates"
	if activeOnly {
		path += "?active=true"
	}
	var resp struct {
		Gates []*model.Gate `json:"gates"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Gates, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type actorKey struct{}

// withActor overrides the client's actor for one request.
func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	actor := c.actor
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		actor = v
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
