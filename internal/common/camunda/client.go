// Package camunda connects the engine to a Zeebe gateway and hosts the job
// workers that expose notification operations to BPMN processes.
package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"course-notify/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backoff bounds how often a broker call is repeated after a transient failure.
type Backoff struct {
	Attempts int
	First    time.Duration
	Cap      time.Duration
}

// DefaultBackoff covers a gateway that is still starting next to the engine.
var DefaultBackoff = Backoff{Attempts: 6, First: time.Second, Cap: 15 * time.Second}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.First << attempt
	if d <= 0 || d > b.Cap {
		return b.Cap
	}
	return d
}

// Client owns the gateway connection shared by every job worker.
type Client struct {
	zb      zbc.Client
	address string
	timeout time.Duration
	backoff Backoff
}

// NewClient dials a plaintext gateway and waits, within DefaultBackoff, for
// it to answer a topology request.
func NewClient(address string, requestTimeout time.Duration) (*Client, error) {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	zb, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client for %s: %w", address, err)
	}

	c := &Client{zb: zb, address: address, timeout: requestTimeout, backoff: DefaultBackoff}
	if _, err := c.ExecuteWithRetry(context.Background(), c.topology, "topology"); err != nil {
		zb.Close()
		return nil, err
	}
	return c, nil
}

// GetClient returns the raw gateway client used to open job workers.
func (c *Client) GetClient() zbc.Client {
	return c.zb
}

func (c *Client) Close() error {
	return c.zb.Close()
}

// HealthCheck asks the gateway for its topology once. It backs the /ready
// probe, so it does not retry.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.topology(ctx); err != nil {
		return fmt.Errorf("zeebe gateway %s: %w", c.address, err)
	}
	return nil
}

func (c *Client) topology(ctx context.Context) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.zb.NewTopologyCommand().Send(ctx)
}

// ExecuteWithRetry runs call until it succeeds, fails permanently or the
// backoff is spent. The final error is an apperrors.StandardError.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	call func(context.Context) (interface{}, error),
	op string,
) (interface{}, error) {
	attempts := c.backoff.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; ; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		if !isRetryableZeebeError(err) || attempt+1 >= attempts {
			return nil, classify(op, attempt+1, err)
		}

		select {
		case <-time.After(c.backoff.delay(attempt)):
		case <-ctx.Done():
			return nil, errors.NewInternalError(fmt.Errorf("zeebe %s abandoned after %d attempts: %w", op, attempt+1, ctx.Err()))
		}
	}
}

// isRetryableZeebeError reports whether err is worth another attempt. Gateway
// errors carry a gRPC status; anything else is judged by its message.
func isRetryableZeebeError(err error) bool {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		default:
			return false
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"connection refused", "connection reset", "timeout", "deadline exceeded", "unavailable", "broken pipe"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// classify maps a gateway rejection onto the engine's error codes: requests
// the broker refuses to act on are validation failures, the rest are
// external-service failures.
func classify(op string, attempts int, err error) error {
	code := codes.Unknown
	if st, ok := status.FromError(err); ok {
		code = st.Code()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case code == codes.InvalidArgument, code == codes.NotFound, code == codes.FailedPrecondition,
		strings.Contains(msg, "invalid argument"), strings.Contains(msg, "not found"):
		return errors.NewValidationFailedError(fmt.Sprintf("zeebe %s rejected: %s", op, err.Error()))
	default:
		return errors.NewExternalServiceError("zeebe", fmt.Errorf("%s failed after %d attempt(s): %w", op, attempts, err))
	}
}
