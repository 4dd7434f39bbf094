package incident

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// IncidentServiceClient is the client stub of the incident service.
type IncidentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewIncidentServiceClient creates a stub over cc.
func NewIncidentServiceClient(cc grpc.ClientConnInterface) *IncidentServiceClient {
	return &IncidentServiceClient{cc: cc}
}

// CreateIncident calls the CreateIncident method.
func (c *IncidentServiceClient) CreateIncident(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CreateIncidentMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// GetIncident calls the GetIncident method.
func (c *IncidentServiceClient) GetIncident(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetIncidentMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ResolveIncident calls the ResolveIncident method.
func (c *IncidentServiceClient) ResolveIncident(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResolveIncidentMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ListIncidents calls the ListIncidents method.
func (c *IncidentServiceClient) ListIncidents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListIncidentsMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// WatchIncident opens the WatchIncident stream.
func (c *IncidentServiceClient) WatchIncident(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchIncidentMethod, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err = x.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}

// WatchSensor opens the WatchSensor stream.
func (c *IncidentServiceClient) WatchSensor(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.ListValue], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], WatchSensorMethod, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[structpb.Struct, structpb.ListValue]{ClientStream: stream}
	if err = x.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
