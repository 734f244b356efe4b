package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrParseFailed indicates the parser service rejected or failed a job.
	ErrParseFailed = errors.New("document parsing failed")

	// ErrParserUnavailable indicates the parser service could not be reached.
	ErrParserUnavailable = errors.New("parser service unavailable")
)

// ParserConfig configures the document parser client.
type ParserConfig struct {
	// BaseURL of the parser service. Empty disables parsing; only
	// plain-text documents can be ingested then.
	BaseURL string

	// PollInterval between job status checks. Default: 2s.
	PollInterval time.Duration

	// MaxPollAttempts bounds the wait for a job. Default: 30.
	MaxPollAttempts int
}

// ApplyDefaults sets default values for unset fields.
func (c *ParserConfig) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollAttempts == 0 {
		c.MaxPollAttempts = 30
	}
}

// ParserClient extracts text from binary documents via an external
// parser service. The service is asynchronous: submit returns a job
// id, and the client polls until the job settles.
type ParserClient struct {
	config ParserConfig
	client *http.Client
	logger *zap.Logger
}

// NewParserClient creates a parser client. Returns nil when no base
// URL is configured, which callers treat as "parsing disabled".
func NewParserClient(config ParserConfig, logger *zap.Logger) *ParserClient {
	if config.BaseURL == "" {
		return nil
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParserClient{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type parseSubmitRequest struct {
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type parseSubmitResponse struct {
	JobID string `json:"job_id"`
}

type parseJobResponse struct {
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Parse submits raw content and waits for the extracted text.
func (c *ParserClient) Parse(ctx context.Context, contentType string, content []byte) (string, error) {
	jobID, err := c.submit(ctx, contentType, content)
	if err != nil {
		return "", err
	}
	c.logger.Debug("parse job submitted", zap.String("job_id", jobID), zap.String("content_type", contentType))

	var text string
	err = poll(ctx, c.config.PollInterval, c.config.MaxPollAttempts, func(ctx context.Context) (bool, error) {
		job, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return false, err
		}
		switch job.Status {
		case "done":
			text = job.Text
			return true, nil
		case "failed":
			return false, fmt.Errorf("%w: %s", ErrParseFailed, job.Error)
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *ParserClient) submit(ctx context.Context, contentType string, content []byte) (string, error) {
	body, err := json.Marshal(parseSubmitRequest{ContentType: contentType, Content: content})
	if err != nil {
		return "", fmt.Errorf("marshaling parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/v1/parse", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParserUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrParseFailed, resp.StatusCode, string(respBody))
	}

	var submit parseSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submit); err != nil {
		return "", fmt.Errorf("decoding parse response: %w", err)
	}
	if submit.JobID == "" {
		return "", fmt.Errorf("%w: empty job id", ErrParseFailed)
	}
	return submit.JobID, nil
}

func (c *ParserClient) jobStatus(ctx context.Context, jobID string) (*parseJobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.BaseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating job request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParserUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: job status %d: %s", ErrParseFailed, resp.StatusCode, string(respBody))
	}

	var job parseJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decoding job response: %w", err)
	}
	return &job, nil
}
