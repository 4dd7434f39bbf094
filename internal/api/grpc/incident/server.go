package incident

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	pb "github.com/oshokin/breathe-tracking/internal/pb/v1"
)

// Server implements the IncidentService gRPC API over an incident store.
type Server struct {
	UnimplementedIncidentServiceServer

	// store provides the business logic for incident operations.
	store domain.Store
}

var _ IncidentServiceServer = (*Server)(nil)

// NewServer wires the provided store into a gRPC handler.
func NewServer(store domain.Store) *Server {
	return &Server{
		store: store,
	}
}

// CreateIncident stores a new pending incident.
func (s *Server) CreateIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	draft, err := pb.DraftFromStruct(req)
	if err != nil {
		return nil, toStatus(err)
	}

	inc, err := s.store.Create(ctx, draft)
	if err != nil {
		return nil, toStatus(err)
	}

	return pb.IncidentToStruct(inc), nil
}

// GetIncident returns one incident.
func (s *Server) GetIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := pb.IDFromRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}

	inc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	return pb.IncidentToStruct(inc), nil
}

// ResolveIncident marks an incident as resolved.
func (s *Server) ResolveIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := pb.IDFromRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}

	inc, err := s.store.Resolve(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	return pb.IncidentToStruct(inc), nil
}

// ListIncidents returns the incidents of a sensor, newest first.
func (s *Server) ListIncidents(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	sensorID, limit, err := pb.SensorFromRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}

	list, err := s.store.List(ctx, sensorID, limit)
	if err != nil {
		return nil, toStatus(err)
	}

	return pb.IncidentsToList(list), nil
}

// WatchIncident streams the state of one incident until the client goes away.
// Updates the client is too slow to take are coalesced into the latest one.
func (s *Server) WatchIncident(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	id, err := pb.IDFromRequest(req)
	if err != nil {
		return toStatus(err)
	}

	ctx := logger.WithKV(stream.Context(), "incident_id", id)
	box := newMailbox[domain.Update]()

	sub, err := s.store.WatchIncident(ctx, id, box.put)
	if err != nil {
		return toStatus(err)
	}
	defer sub.Cancel()

	logger.DebugKV(ctx, "Incident stream opened")

	for {
		select {
		case <-ctx.Done():
			logger.DebugKV(ctx, "Incident stream closed")

			return nil
		case u := <-box.ch:
			if u.Err != nil {
				return toStatus(u.Err)
			}

			if err = stream.Send(pb.IncidentToStruct(u.Incident)); err != nil {
				return err
			}
		}
	}
}

// WatchSensor streams the incident list of a sensor until the client goes away.
func (s *Server) WatchSensor(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.ListValue]) error {
	sensorID, limit, err := pb.SensorFromRequest(req)
	if err != nil {
		return toStatus(err)
	}

	ctx := logger.WithKV(stream.Context(), "sensor_id", sensorID)
	box := newMailbox[domain.ListUpdate]()

	sub, err := s.store.WatchSensor(ctx, sensorID, limit, box.put)
	if err != nil {
		return toStatus(err)
	}
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-box.ch:
			if u.Err != nil {
				return toStatus(u.Err)
			}

			if err = stream.Send(pb.IncidentsToList(u.Incidents)); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors to gRPC status errors.
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrIncompleteReport), errors.Is(err, pb.ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromStatus maps gRPC status errors back to domain errors where one exists.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return errors.Join(domain.ErrNotFound, err)
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), domain.ErrIncompleteReport.Error()) {
			return errors.Join(domain.ErrIncompleteReport, err)
		}

		return errors.Join(pb.ErrMalformed, err)
	default:
		return err
	}
}

// mailbox holds at most one pending value; a new value replaces an unread one.
type mailbox[T any] struct {
	ch chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan T, 1)}
}

func (m *mailbox[T]) put(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}

		select {
		case <-m.ch:
		default:
		}
	}
}
