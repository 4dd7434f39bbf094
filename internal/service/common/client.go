//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	api "github.com/oshokin/breathe-tracking/internal/api/grpc/incident"
	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	pb "github.com/oshokin/breathe-tracking/internal/pb/v1"
)

// ErrStreamEnded is reported to a watcher whose stream the server closed.
var ErrStreamEnded = errors.New("watch stream ended by server")

// Client is the remote incident store reached over gRPC.
type Client struct {
	// conn is the underlying gRPC connection to the incident server.
	conn *grpc.ClientConn
	// api is the IncidentService stub.
	api *api.IncidentServiceClient

	// callTimeout is the default timeout for individual unary calls; streams are not bounded.
	callTimeout time.Duration
}

var _ incident.Store = (*Client)(nil)

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial creates a client of the incident server at address.
// The connection is established lazily, so Dial does not block on the network.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	return DialWith(address, []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
}

// DialWith is Dial with explicit gRPC dial options.
func DialWith(target string, dialOpts []grpc.DialOption, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial incident server: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         api.NewIncidentServiceClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Create implements incident.Store.
func (c *Client) Create(ctx context.Context, draft incident.Draft) (*incident.Incident, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.CreateIncident(callCtx, pb.DraftToStruct(draft))
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", api.FromStatus(err))
	}

	return pb.IncidentFromStruct(resp)
}

// Get implements incident.Store.
func (c *Client) Get(ctx context.Context, id string) (*incident.Incident, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetIncident(callCtx, pb.IDRequest(id))
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, api.FromStatus(err))
	}

	return pb.IncidentFromStruct(resp)
}

// List implements incident.Store.
func (c *Client) List(ctx context.Context, sensorID string, limit int) ([]*incident.Incident, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.ListIncidents(callCtx, pb.SensorRequest(sensorID, limit))
	if err != nil {
		return nil, fmt.Errorf("list incidents of %s: %w", sensorID, api.FromStatus(err))
	}

	return pb.IncidentsFromList(resp)
}

// Resolve implements incident.Store.
func (c *Client) Resolve(ctx context.Context, id string) (*incident.Incident, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.ResolveIncident(callCtx, pb.IDRequest(id))
	if err != nil {
		return nil, fmt.Errorf("resolve incident %s: %w", id, api.FromStatus(err))
	}

	return pb.IncidentFromStruct(resp)
}

// WatchIncident implements incident.Watcher.
// The stream is opened on a background goroutine; failures arrive through fn.
func (c *Client) WatchIncident(ctx context.Context, id string, fn func(incident.Update)) (incident.Subscription, error) {
	if id == "" {
		return nil, errors.New("incident id is empty")
	}

	return c.watch(ctx, "incident_id", id, func(streamCtx context.Context, emit func(error)) error {
		stream, err := c.api.WatchIncident(streamCtx, pb.IDRequest(id))
		if err != nil {
			return err
		}

		for {
			msg, err := stream.Recv()
			if err != nil {
				return err
			}

			inc, err := pb.IncidentFromStruct(msg)
			if err != nil {
				emit(err)

				continue
			}

			if streamCtx.Err() != nil {
				return nil
			}

			fn(incident.Update{Incident: inc})
		}
	}, func(err error) { fn(incident.Update{Err: err}) }), nil
}

// WatchSensor implements incident.SensorWatcher.
func (c *Client) WatchSensor(
	ctx context.Context,
	sensorID string,
	limit int,
	fn func(incident.ListUpdate),
) (incident.Subscription, error) {
	if sensorID == "" {
		return nil, errors.New("sensor id is empty")
	}

	return c.watch(ctx, "sensor_id", sensorID, func(streamCtx context.Context, emit func(error)) error {
		stream, err := c.api.WatchSensor(streamCtx, pb.SensorRequest(sensorID, limit))
		if err != nil {
			return err
		}

		for {
			msg, err := stream.Recv()
			if err != nil {
				return err
			}

			list, err := pb.IncidentsFromList(msg)
			if err != nil {
				emit(err)

				continue
			}

			if streamCtx.Err() != nil {
				return nil
			}

			fn(incident.ListUpdate{Incidents: list})
		}
	}, func(err error) { fn(incident.ListUpdate{Err: err}) }), nil
}

// watch runs a stream loop on its own goroutine until the subscription is cancelled.
// The stream outlives ctx; only Cancel ends it. Any other end, including a clean
// close by the server, is reported once through fail.
func (c *Client) watch(
	ctx context.Context,
	key, value string,
	loop func(streamCtx context.Context, emit func(error)) error,
	fail func(error),
) incident.Subscription {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	streamCtx = logger.WithKV(streamCtx, key, value)

	var cancelled atomic.Bool

	emit := func(err error) {
		if !cancelled.Load() {
			fail(api.FromStatus(err))
		}
	}

	go func() {
		defer cancel()

		err := loop(streamCtx, emit)

		switch {
		case cancelled.Load():
			logger.DebugKV(streamCtx, "Watch stream closed")
		case err == nil, errors.Is(err, io.EOF):
			logger.WarnKV(streamCtx, "Watch stream ended by server")
			emit(ErrStreamEnded)
		default:
			logger.WarnKV(streamCtx, "Watch stream failed", "error", err)
			emit(err)
		}
	}()

	return incident.SubscriptionFunc(func() {
		cancelled.Store(true)
		cancel()
	})
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
