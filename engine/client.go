package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siftlab/sift/config"
	"github.com/siftlab/sift/errors"
	"github.com/siftlab/sift/internal/httpclient"
)

// DefaultPollInterval is the fixed wait between status polls (no jitter)
const DefaultPollInterval = 10 * time.Second

// pendingPoll tracks the timer for a job's next poll so a teardown can
// positively cancel it. There is exactly one in-flight poll per job: the next
// timer is armed only after the previous response has returned.
type pendingPoll struct {
	timer  *time.Timer
	handle *Handle
}

// Client submits methods to the analysis engine for one dataset and polls
// them to completion.
type Client struct {
	baseURL   string
	datasetID int64

	http         *httpclient.SaferClient
	pollInterval time.Duration
	maxPolls     int
	limiter      *rate.Limiter
	logger       *zap.SugaredLogger

	mu      sync.Mutex
	pending map[int64]*pendingPoll
	closed  bool
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (used by tests with httptest servers)
func WithHTTPClient(hc *httpclient.SaferClient) Option {
	return func(c *Client) { c.http = hc }
}

// WithPollInterval overrides the fixed poll interval
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient creates an engine client scoped to one dataset
func NewClient(cfg config.EngineConfig, datasetID int64, logger *zap.SugaredLogger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	pollInterval := DefaultPollInterval
	if cfg.PollIntervalSeconds > 0 {
		pollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}

	submitRate := rate.Limit(2)
	if cfg.SubmitRatePerSecond > 0 {
		submitRate = rate.Limit(cfg.SubmitRatePerSecond)
	}

	requestTimeout := 30 * time.Second
	if cfg.RequestTimeoutSeconds > 0 {
		requestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}

	c := &Client{
		baseURL:      cfg.BaseURL,
		datasetID:    datasetID,
		http:         httpclient.New(requestTimeout),
		pollInterval: pollInterval,
		maxPolls:     cfg.MaxPolls,
		limiter:      rate.NewLimiter(submitRate, 1),
		logger:       logger.With("dataset_id", datasetID),
		pending:      make(map[int64]*pendingPoll),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends a method to the engine. Parameters must already be validated
// and shaped by the caller; the client does not validate method-specific
// schemas. A transport failure during submit is returned immediately and is
// not retried - retry, if any, is the caller's decision.
func (c *Client) Submit(ctx context.Context, appliedOn int64, methodType string, parameters json.RawMessage) (*Handle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	body, err := json.Marshal(submitRequest{
		MethodType: methodType,
		Parameters: parameters,
		AppliedOn:  appliedOn,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal submit request")
	}

	var resp submitResponse
	submitURL := fmt.Sprintf("%s/api/datasets/%d/methods", c.baseURL, c.datasetID)
	if err := c.postJSON(ctx, submitURL, body, &resp); err != nil {
		return nil, err
	}

	h := newHandle(resp.ID)

	switch resp.Status {
	case StatusProcessing:
		c.logger.Debugw("Job accepted for processing",
			"job_id", resp.ID,
			"method_type", methodType,
			"hash", resp.Hash,
		)
		c.schedulePoll(h, resp.Hash, 0)

	case StatusFailed:
		h.resolve(nil, errors.Wrapf(errors.ErrJobFailed, "job %d: %s", resp.ID, resp.Error))

	case "", StatusFinished:
		// Fast path: the synchronous response already carries the
		// terminal result for cheap methods
		c.logger.Debugw("Job finished synchronously",
			"job_id", resp.ID,
			"method_type", methodType,
		)
		h.resolve(&Result{JobID: resp.ID, Payload: resp.Result}, nil)

	default:
		h.resolve(nil, errors.Wrapf(errors.ErrTransport, "job %d: unknown status %q", resp.ID, resp.Status))
	}

	return h, nil
}

// schedulePoll arms the timer for a job's next status poll. The timer is kept
// in the pending map so Close can cancel it.
func (c *Client) schedulePoll(h *Handle, hash string, polls int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		h.resolve(nil, errors.Wrap(errors.ErrTransport, "engine client closed"))
		return
	}
	timer := time.AfterFunc(c.pollInterval, func() {
		c.poll(h, hash, polls)
	})
	c.pending[h.jobID] = &pendingPoll{timer: timer, handle: h}
	c.mu.Unlock()
}

// poll performs one status request for a job. The next poll is armed only
// after this one's response returns, so status can only be observed to move
// forward for a given job.
func (c *Client) poll(h *Handle, hash string, polls int) {
	c.mu.Lock()
	delete(c.pending, h.jobID)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		h.resolve(nil, errors.Wrap(errors.ErrTransport, "engine client closed"))
		return
	}

	polls++
	if c.maxPolls > 0 && polls > c.maxPolls {
		// Give up observing; the engine-side job keeps running since
		// there is no cancel endpoint
		h.resolve(nil, errors.Wrapf(errors.ErrTimeout, "job %d still processing after %d polls", h.jobID, c.maxPolls))
		return
	}

	statusURL := fmt.Sprintf("%s/api/datasets/%d/methods/%d/status?hash=%s",
		c.baseURL, c.datasetID, h.jobID, url.QueryEscape(hash))

	var status statusResponse
	if err := c.getJSON(context.Background(), statusURL, &status); err != nil {
		// The loop itself is the retry mechanism for transient failures
		// during polling; the poll budget bounds it
		c.logger.Warnw("Status poll failed, will retry",
			"job_id", h.jobID,
			"polls", polls,
			"error", err,
		)
		c.schedulePoll(h, hash, polls)
		return
	}

	switch status.Status {
	case StatusProcessing:
		// The engine may rotate the correlation hash; carry it forward
		next := hash
		if status.Hash != "" {
			next = status.Hash
		}
		c.schedulePoll(h, next, polls)

	case StatusFinished:
		methodID := h.jobID
		if status.MethodID != nil {
			methodID = *status.MethodID
		}
		c.fetchResult(h, methodID)

	case StatusFailed:
		h.resolve(nil, errors.Wrapf(errors.ErrJobFailed, "job %d: %s", h.jobID, status.Error))

	default:
		h.resolve(nil, errors.Wrapf(errors.ErrTransport, "job %d: unknown status %q", h.jobID, status.Status))
	}
}

// fetchResult performs the final fetch-by-id to obtain the full result
// payload once the engine reports finished
func (c *Client) fetchResult(h *Handle, methodID int64) {
	methodURL := fmt.Sprintf("%s/api/datasets/%d/methods/%d", c.baseURL, c.datasetID, methodID)

	var method methodResponse
	if err := c.getJSON(context.Background(), methodURL, &method); err != nil {
		h.resolve(nil, err)
		return
	}

	h.resolve(&Result{
		JobID:    h.jobID,
		Payload:  method.Result,
		Produced: method.Produced,
	}, nil)
}

// Documents fetches one page of documents for a subset. The field context is
// passed explicitly rather than read from shared state.
func (c *Client) Documents(ctx context.Context, subsetID int64, page, limit int, query string, fields FieldContext) (*DocumentsPage, error) {
	q := url.Values{}
	q.Set("subset", fmt.Sprintf("%d", subsetID))
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("limit", fmt.Sprintf("%d", limit))
	if query != "" {
		q.Set("query", query)
	}
	if len(fields.Fields) > 0 {
		q.Set("fields", fields.queryString())
	}

	docsURL := fmt.Sprintf("%s/api/datasets/%d/documents?%s", c.baseURL, c.datasetID, q.Encode())

	var result DocumentsPage
	if err := c.getJSON(ctx, docsURL, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close cancels every outstanding poll timer and resolves their handles with
// a transport error. Engine-side jobs keep running.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]*pendingPoll)
	c.mu.Unlock()

	for jobID, p := range pending {
		p.timer.Stop()
		p.handle.resolve(nil, errors.Wrap(errors.ErrTransport, "engine client closed"))
		c.logger.Debugw("Cancelled outstanding poll", "job_id", jobID)
	}
}

// postJSON sends a JSON body and decodes a JSON response
func (c *Client) postJSON(ctx context.Context, rawURL string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// getJSON performs a GET and decodes a JSON response
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrTransport, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Wrapf(errors.ErrTransport, "%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, payload)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(errors.ErrTransport, "%s %s: decode response: %v", req.Method, req.URL.Path, err)
	}
	return nil
}
