// Package upload performs single-attempt transfers of backup artifacts
// to the depot's ingest endpoint. Retry policy lives with the caller:
// an artifact that fails here stays unsent in the ledger and is retried
// whole on the next delivery cycle.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/backhaul-io/backhaul/common/logger"
)

// Outcome classifies the result of one transfer attempt.
type Outcome string

const (
	// Delivered means the depot confirmed receipt.
	Delivered Outcome = "delivered"
	// Rejected means the depot understood the request but declined it
	// (unknown stream, malformed request, server-side failure).
	Rejected Outcome = "rejected"
	// TimedOut means the transfer did not complete within the deadline.
	TimedOut Outcome = "timed_out"
	// Unreachable means no connection to the depot could be established.
	Unreachable Outcome = "unreachable"
	// TransportFailed covers every other transport-level error.
	TransportFailed Outcome = "transport_failed"
)

// Result is the classified outcome of one Send.
type Result struct {
	Outcome    Outcome
	Message    string // server message on Delivered
	StatusCode int    // set on Rejected
	Body       string // set on Rejected
	Err        error  // set on transport outcomes
}

// Progress observes cumulative bytes read from the artifact as the body
// streams out. Purely informational; it never affects the transfer.
type Progress func(bytesSent int64)

// Client sends artifacts to one ingest endpoint.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	progress   Progress
	log        *logger.Logger
}

// Option configures the client.
type Option func(*Client)

// WithProgress installs a cumulative byte-count observer.
func WithProgress(p Progress) Option {
	return func(c *Client) {
		c.progress = p
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates an upload client for the given ingest endpoint. timeout
// bounds each whole transfer; the default of 10 minutes accommodates
// large archives over slow links.
func New(endpoint string, timeout time.Duration, log *logger.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	c := &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ingestResponse is the depot's success body.
type ingestResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Stream   string `json:"stream"`
	Filename string `json:"filename"`
}

// Send streams the file at path to the ingest endpoint as a multipart
// body with the stream identity as a companion field. One attempt, no
// internal retry.
func (c *Client) Send(ctx context.Context, path, stream string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{Outcome: TransportFailed, Err: fmt.Errorf("failed to open artifact: %w", err)}
	}
	defer f.Close()

	filename := filepath.Base(path)
	c.log.Debug("starting transfer", "artifact", filename, "stream", stream, "endpoint", c.endpoint)

	// Stream the multipart body through a pipe so large archives never
	// have to fit in memory.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := writer.WriteField("stream", stream); err != nil {
				return err
			}
			part, err := writer.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			var src io.Reader = f
			if c.progress != nil {
				src = &countingReader{r: f, observe: c.progress}
			}
			if _, err := io.Copy(part, src); err != nil {
				return err
			}
			return writer.Close()
		}()
		pw.CloseWithError(err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return Result{Outcome: TransportFailed, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return Result{
			Outcome:    Rejected,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var ingest ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&ingest); err != nil {
		// Accepted but unparseable body; the artifact was delivered
		ingest.Message = "OK"
	}

	return Result{Outcome: Delivered, Message: ingest.Message}
}

// classifyTransportError maps request errors to upload outcomes.
func classifyTransportError(err error) Result {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return Result{Outcome: TimedOut, Err: err}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return Result{Outcome: Unreachable, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Outcome: TimedOut, Err: err}
	}
	return Result{Outcome: TransportFailed, Err: err}
}

// countingReader invokes observe with the cumulative byte count as data
// is read.
type countingReader struct {
	r       io.Reader
	total   int64
	observe Progress
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		c.observe(c.total)
	}
	return n, err
}
