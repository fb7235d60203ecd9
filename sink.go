package mqttbridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coregx/mqttbridge/model"
	"github.com/coregx/mqttbridge/retry"
)

// MessageSink defines the interface for delivering an envelope's JSON body to
// the downstream endpoint. This keeps the pipeline independent of the
// transport and enables flexible implementations (HTTP, gRPC, test doubles).
//
// Implementations return nil on success, or a *DeliveryError carrying the
// retryable/permanent classification on failure.
type MessageSink interface {
	// Deliver sends the envelope's body to the sink. The context bounds the
	// call; implementations must also apply their own request timeout.
	Deliver(ctx context.Context, env *model.Envelope) error
}

// DeliveryError describes a failed delivery attempt.
type DeliveryError struct {
	// StatusCode is the HTTP response status, or 0 for transport-level
	// failures (connection refused, DNS, timeout).
	StatusCode int

	// Retryable reports whether the retry engine should attempt redelivery.
	Retryable bool

	// Err is the underlying error or a description of the rejection.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sink responded %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sink unreachable: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// maxErrorBodyBytes bounds how much of a rejection body is kept for the
// dead-letter record.
const maxErrorBodyBytes = 512

// HTTPSink delivers envelopes via HTTP POST with a bounded request timeout.
// The request body is the envelope's derived JSON document and carries
// Content-Type: application/json.
//
// Responses are classified per the configured retry.Classifier: 2xx is
// success, retryable statuses and transport errors become retryable
// DeliveryErrors, everything else is permanent.
type HTTPSink struct {
	url        string
	client     *http.Client
	classifier retry.Classifier
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient replaces the default HTTP client. The client's Timeout
// bounds each delivery attempt.
func WithHTTPClient(client *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.client = client
	}
}

// WithRequestTimeout sets the per-attempt timeout on the sink's client.
func WithRequestTimeout(timeout time.Duration) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.client.Timeout = timeout
	}
}

// WithClassifier replaces the default retryable-status classification.
func WithClassifier(classifier retry.Classifier) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.classifier = classifier
	}
}

// NewHTTPSink creates an HTTP sink posting to the given URL. An unparsable
// or relative URL is a configuration error and should be treated as fatal at
// startup, before the pipeline accepts messages.
//
// Default request timeout: 10 seconds.
func NewHTTPSink(rawURL string, opts ...HTTPSinkOption) (*HTTPSink, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid sink URL", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("sink URL must be http or https, got %q", rawURL))
	}

	s := &HTTPSink{
		url:    rawURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// URL returns the configured sink URL.
func (s *HTTPSink) URL() string {
	return s.url
}

// Deliver posts the envelope's body to the sink URL. A call that exceeds the
// request timeout is treated identically to a connection failure: a
// retryable DeliveryError with StatusCode 0.
func (s *HTTPSink) Deliver(ctx context.Context, env *model.Envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(env.Body()))
	if err != nil {
		return &DeliveryError{Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Retryable: true, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Retryable:  s.classifier.Retryable(resp.StatusCode),
		Err:        fmt.Errorf("%s", string(snippet)),
	}
}
