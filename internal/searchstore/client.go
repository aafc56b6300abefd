package searchstore

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// Client is the production Store implementation over the engine's REST API.
// Writes are asynchronous on the engine side: every mutation returns a task
// id that Client polls to completion before reporting success.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	transport  *http.Transport

	docIndex          string
	paraIndex         string
	dimensions        int
	authorityPosition int
	batchBytes        int
	taskTimeout       time.Duration
	pollInterval      time.Duration
}

// Verify interface implementation at compile time
var _ Store = (*Client)(nil)

// NewClient builds the adapter. No network is touched until EnsureIndexes.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.InputInvalid("search engine host is required", nil).
			WithSuggestion("set search.url in maktaba.yaml")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.InputInvalid("embedding dimensions must be positive", nil)
	}
	if cfg.DocumentIndex == "" {
		cfg.DocumentIndex = "documents"
	}
	if cfg.ParagraphIndex == "" {
		cfg.ParagraphIndex = "paragraphs"
	}
	if cfg.AuthorityPosition == 0 {
		cfg.AuthorityPosition = DefaultAuthorityPosition
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	// Pooled transport; request deadlines come from contexts, not a
	// client-wide timeout.
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Client{
		host:              strings.TrimRight(cfg.Host, "/"),
		apiKey:            cfg.APIKey,
		httpClient:        &http.Client{Transport: transport},
		transport:         transport,
		docIndex:          cfg.DocumentIndex,
		paraIndex:         cfg.ParagraphIndex,
		dimensions:        cfg.Dimensions,
		authorityPosition: cfg.AuthorityPosition,
		batchBytes:        cfg.BatchBytes,
		taskTimeout:       cfg.TaskTimeout,
		pollInterval:      cfg.PollInterval,
	}, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// taskRef is the immediate acknowledgement of an asynchronous write.
type taskRef struct {
	TaskUID int64 `json:"taskUid"`
}

// task is the polled task state.
type task struct {
	UID    int64      `json:"uid"`
	Status string     `json:"status"`
	Error  *taskError `json:"error,omitempty"`
}

type taskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// statusError is a non-2xx engine reply.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.status, e.body)
}

// do sends one request and decodes a 2xx JSON reply into out (when non-nil).
// Non-2xx replies come back as *statusError so callers can branch on status.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// submit sends a mutation and waits for its task to reach a terminal state.
func (c *Client) submit(ctx context.Context, method, path string, payload any) error {
	var ref taskRef
	if err := c.do(ctx, method, path, payload, &ref); err != nil {
		return classifySearch(err)
	}
	return c.awaitTask(ctx, ref.TaskUID)
}

// awaitTask polls one task until it succeeds or fails, bounded by the task
// timeout. An engine-side failure surfaces the task's own error message.
func (c *Client) awaitTask(ctx context.Context, uid int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.taskTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var t task
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", uid), nil, &t); err != nil {
			return classifySearch(err)
		}

		switch t.Status {
		case "succeeded":
			return nil
		case "failed", "canceled":
			msg := fmt.Sprintf("task %d %s", uid, t.Status)
			if t.Error != nil {
				msg = fmt.Sprintf("task %d %s: %s (%s)", uid, t.Status, t.Error.Message, t.Error.Code)
			}
			return errors.SearchFailed(msg, nil)
		}

		select {
		case <-ctx.Done():
			return classifySearch(ctx.Err())
		case <-ticker.C:
		}
	}
}

// awaitTaskCode is awaitTask for callers that tolerate specific engine
// failure codes, such as racing another process on index creation.
func (c *Client) awaitTaskCode(ctx context.Context, uid int64, tolerated string) error {
	err := c.awaitTask(ctx, uid)
	if err != nil && tolerated != "" && strings.Contains(err.Error(), "("+tolerated+")") {
		return nil
	}
	return err
}

// classifySearch maps transport and engine errors to search_failed, letting
// context expiry keep its own kind. The sync worker treats search_failed as
// "leave rows unsynced and back off".
func classifySearch(err error) error {
	if err == nil {
		return nil
	}
	var me *errors.MaktabaError
	if stderrors.As(err, &me) {
		return err
	}
	return errors.Wrap(errors.KindSearchFailed, err)
}
