// Package calendar notifies an external calendar about performed care acts.
//
// Notifications are fire-and-forget: callers enqueue them after their write
// has committed and a background worker delivers them as HMAC-SHA256 signed
// JSON POST requests, retrying transient failures with exponential backoff.
package calendar

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

var (
	ErrClosed    = errors.New("calendar notifier closed")
	ErrQueueFull = errors.New("calendar notification queue full")
)

// Event is the calendar entry mirrored for one prestation.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Syncer mirrors prestations into a calendar.
type Syncer interface {
	UpsertEvent(ctx context.Context, ev Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// Noop discards every notification.
type Noop struct{}

func (Noop) UpsertEvent(context.Context, Event) error  { return nil }
func (Noop) DeleteEvent(context.Context, string) error { return nil }

// Notification is the signed body posted to the endpoint.
type Notification struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	EventID   string    `json:"event_id"`
	Event     *Event    `json:"event,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.httpClient = c }
}

// WithMaxRetries sets how many times a failed delivery is retried.
func WithMaxRetries(max uint64) Option {
	return func(n *Notifier) { n.maxRetries = max }
}

// WithRetryInterval sets the first backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(n *Notifier) { n.retryInterval = d }
}

func WithQueueSize(size int) Option {
	return func(n *Notifier) { n.queueSize = size }
}

// WithObserver registers a callback run after each delivery with its final
// outcome.
func WithObserver(fn func(action string, err error)) Option {
	return func(n *Notifier) { n.observe = fn }
}

// Notifier delivers calendar notifications to a single webhook endpoint.
type Notifier struct {
	endpoint      string
	secret        string
	httpClient    *http.Client
	logger        zerolog.Logger
	maxRetries    uint64
	retryInterval time.Duration
	queueSize     int
	observe       func(action string, err error)

	queue  chan Notification
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNotifier validates endpoint and starts the delivery worker. Close must
// be called to flush pending notifications.
func NewNotifier(endpoint, secret string, logger zerolog.Logger, opts ...Option) (*Notifier, error) {
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	n := &Notifier{
		endpoint:      endpoint,
		secret:        secret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger.With().Str("component", "calendar").Logger(),
		maxRetries:    3,
		retryInterval: time.Second,
		queueSize:     256,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	n.queue = make(chan Notification, n.queueSize)
	n.ctx, n.cancel = context.WithCancel(context.Background())
	go n.run()
	return n, nil
}

func validateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("calendar endpoint is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid calendar endpoint: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("calendar endpoint scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

func (n *Notifier) UpsertEvent(_ context.Context, ev Event) error {
	return n.enqueue(Notification{Action: ActionUpsert, EventID: ev.ID, Event: &ev})
}

func (n *Notifier) DeleteEvent(_ context.Context, id string) error {
	return n.enqueue(Notification{Action: ActionDelete, EventID: id})
}

func (n *Notifier) enqueue(msg Notification) error {
	msg.ID = uuid.New().String()
	msg.Timestamp = time.Now().UTC()

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	select {
	case n.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		err := n.deliver(n.ctx, msg)
		if err != nil {
			n.logger.Error().Err(err).Str("action", msg.Action).Str("event_id", msg.EventID).Msg("calendar notification dropped")
		}
		if n.observe != nil {
			n.observe(msg.Action, err)
		}
	}
}

// Close stops accepting notifications and waits for the queue to drain. When
// ctx expires first, in-flight retries are abandoned.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	sig := SignPayload(payload, n.secret)

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Calendar-Signature", "sha256="+sig)
		req.Header.Set("X-Calendar-Action", msg.Action)
		req.Header.Set("X-Calendar-Timestamp", msg.Timestamp.Format(time.RFC3339))

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			return backoff.Permanent(fmt.Errorf("calendar endpoint rejected notification: %d", resp.StatusCode))
		default:
			return fmt.Errorf("calendar endpoint returned %d", resp.StatusCode)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.retryInterval
	b.MaxElapsedTime = 0
	err = backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, n.maxRetries), ctx),
		func(err error, wait time.Duration) {
			n.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying calendar notification")
		})
	return err
}
