// Package analyzer implements the deep-analysis capability consumed by the
// pipeline stages. In production the endpoint fronts a language-model
// inference service; the pipeline only depends on the structured contract.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

// ErrMalformedResponse signals that the analysis service replied with
// content that does not match the stage's expected fields. Treated as a
// stage failure by the caller.
var ErrMalformedResponse = errors.New("analysis response malformed")

// Client calls the analysis service over HTTP, one path per stage.
type Client struct {
	baseURL    string
	logsPath   string
	rcaPath    string
	httpClient *http.Client
}

// NewClient constructs a client targeting the configured analysis service.
func NewClient(baseURL, logsPath, rcaPath string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		logsPath: logsPath,
		rcaPath:  rcaPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze posts the stage request and validates the structured response.
func (c *Client) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if c == nil || c.baseURL == "" {
		return models.AnalysisResult{}, fmt.Errorf("analysis service base URL not configured")
	}

	var endpoint string
	switch req.Stage {
	case models.StageLogs:
		endpoint = c.resolvePath(c.logsPath)
	case models.StageRCA:
		endpoint = c.resolvePath(c.rcaPath)
	default:
		return models.AnalysisResult{}, fmt.Errorf("no analysis endpoint for stage %q", req.Stage)
	}

	var result models.AnalysisResult
	if err := c.postJSON(ctx, endpoint, req, &result); err != nil {
		return models.AnalysisResult{}, err
	}
	if err := validate(req.Stage, result); err != nil {
		return models.AnalysisResult{}, err
	}
	return result, nil
}

// validate enforces the per-stage response contract.
func validate(stage string, result models.AnalysisResult) error {
	switch stage {
	case models.StageLogs:
		for _, issue := range result.Issues {
			if issue.Signature == "" {
				return fmt.Errorf("%w: issue with empty signature", ErrMalformedResponse)
			}
		}
	case models.StageRCA:
		if strings.TrimSpace(result.RootCause) == "" {
			return fmt.Errorf("%w: missing root cause", ErrMalformedResponse)
		}
	}
	return nil
}

func (c *Client) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
