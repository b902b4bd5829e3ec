package virustotal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/credentials"
	"go.uber.org/zap"
)

// DefaultBaseURL is the root of the v3 API
const DefaultBaseURL = "https://www.virustotal.com/api/v3"

// errUnknownArtifact marks a 404 from a lookup endpoint
var errUnknownArtifact = errors.New("artifact not known to the service")

// CredentialSource hands out API keys and takes them out of rotation on 429
type CredentialSource interface {
	Next(ctx context.Context) (credentials.Credential, error)
	MarkLimited(c credentials.Credential)
}

// Config holds the client settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements core.ReputationClient against the VirusTotal API
type Client struct {
	httpClient  *http.Client
	credentials CredentialSource
	baseURL     string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewClient creates a new reputation client. httpClient may be nil.
func NewClient(httpClient *http.Client, creds CredentialSource, cfg Config, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  httpClient,
		credentials: creds,
		baseURL:     baseURL,
		timeout:     timeout,
		logger:      logger,
	}
}

type submitResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type analysisResponse struct {
	Data struct {
		Attributes struct {
			Stats core.ReputationCounts `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
}

type fileResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats core.ReputationCounts `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// SubmitURL queues a URL for scanning and returns the analysis id
func (c *Client) SubmitURL(ctx context.Context, rawURL string) (string, error) {
	form := url.Values{"url": {rawURL}}
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/urls", form, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("%w: submission response carried no analysis id", core.ErrExternalService)
	}
	c.logger.Debug("URL submitted", zap.String("analysis_id", resp.Data.ID))
	return resp.Data.ID, nil
}

// GetURLVerdict fetches the engine stats of an analysis
func (c *Client) GetURLVerdict(ctx context.Context, submissionID string) (*core.ReputationCounts, error) {
	var resp analysisResponse
	if err := c.do(ctx, http.MethodGet, "/analyses/"+url.PathEscape(submissionID), nil, &resp); err != nil {
		return nil, err
	}
	counts := resp.Data.Attributes.Stats
	return &counts, nil
}

// CheckFileHash looks up a SHA-256. A file the service has never seen
// reports zero detections.
func (c *Client) CheckFileHash(ctx context.Context, hash string) (*core.ReputationCounts, error) {
	var resp fileResponse
	err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(hash), nil, &resp)
	if errors.Is(err, errUnknownArtifact) {
		c.logger.Debug("File hash unknown", zap.String("hash", hash))
		return &core.ReputationCounts{}, nil
	}
	if err != nil {
		return nil, err
	}
	counts := resp.Data.Attributes.LastAnalysisStats
	return &counts, nil
}

// do performs one call, failing over to a fresh credential once on 429
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		cred, err := c.credentials.Next(ctx)
		if err != nil {
			return err
		}

		limited, err := c.send(ctx, cred, method, path, form, out)
		if err != nil {
			return err
		}
		if !limited {
			return nil
		}

		c.logger.Warn("Rate limited by reputation service",
			zap.Int("slot", cred.Slot),
			zap.String("path", path),
			zap.Int("attempt", attempt+1))
		c.credentials.MarkLimited(cred)
	}
	return fmt.Errorf("%w: %s %s", core.ErrRateLimited, method, path)
}

// send reports whether the service answered 429
func (c *Client) send(
	ctx context.Context,
	cred credentials.Credential,
	method, path string,
	form url.Values,
	out interface{},
) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("%w: build request: %v", core.ErrExternalService, err)
	}
	req.Header.Set("x-apikey", cred.Token)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s %s: %v", core.ErrExternalService, method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return true, nil
	case http.StatusNotFound:
		return false, fmt.Errorf("%w: %w", core.ErrExternalService, errUnknownArtifact)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: %s %s returned HTTP %d: %s",
			core.ErrExternalService, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: decode %s response: %v", core.ErrExternalService, path, err)
	}
	return false, nil
}
