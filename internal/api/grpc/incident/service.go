package incident

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "breathe.incident.v1.IncidentService"

// Full method names.
const (
	CreateIncidentMethod  = "/" + ServiceName + "/CreateIncident"
	GetIncidentMethod     = "/" + ServiceName + "/GetIncident"
	ResolveIncidentMethod = "/" + ServiceName + "/ResolveIncident"
	ListIncidentsMethod   = "/" + ServiceName + "/ListIncidents"
	WatchIncidentMethod   = "/" + ServiceName + "/WatchIncident"
	WatchSensorMethod     = "/" + ServiceName + "/WatchSensor"
)

// IncidentServiceServer is the server API of the incident service.
type IncidentServiceServer interface {
	CreateIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListIncidents(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
	WatchIncident(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
	WatchSensor(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.ListValue]) error
}

// UnimplementedIncidentServiceServer answers Unimplemented to every method.
type UnimplementedIncidentServiceServer struct{}

// CreateIncident implements IncidentServiceServer.
func (UnimplementedIncidentServiceServer) CreateIncident(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateIncident not implemented")
}

// GetIncident implements IncidentServiceServer.
func (UnimplementedIncidentServiceServer) GetIncident(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetIncident not implemented")
}

// ResolveIncident implements IncidentServiceServer.
func (UnimplementedIncidentServiceServer) ResolveIncident(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveIncident not implemented")
}

// ListIncidents implements IncidentServiceServer.
func (UnimplementedIncidentServiceServer) ListIncidents(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ListIncidents not implemented")
}

// WatchIncident implements IncidentServiceServer.
func (UnimplementedIncidentServiceServer) WatchIncident(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method WatchIncident not implemented")
}

// WatchSensor implements IncidentServiceServer.
func (UnimplementedIncidentServiceServer) WatchSensor(*structpb.Struct, grpc.ServerStreamingServer[structpb.ListValue]) error {
	return status.Error(codes.Unimplemented, "method WatchSensor not implemented")
}

// RegisterIncidentServiceServer registers srv with s.
func RegisterIncidentServiceServer(s grpc.ServiceRegistrar, srv IncidentServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the incident service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package level by gRPC convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IncidentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateIncident", Handler: unaryHandler(CreateIncidentMethod, IncidentServiceServer.CreateIncident)},
		{MethodName: "GetIncident", Handler: unaryHandler(GetIncidentMethod, IncidentServiceServer.GetIncident)},
		{MethodName: "ResolveIncident", Handler: unaryHandler(ResolveIncidentMethod, IncidentServiceServer.ResolveIncident)},
		{MethodName: "ListIncidents", Handler: unaryHandler(ListIncidentsMethod, IncidentServiceServer.ListIncidents)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchIncident",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				req := new(structpb.Struct)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}

				return srv.(IncidentServiceServer).WatchIncident(req,
					&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
			},
		},
		{
			StreamName:    "WatchSensor",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				req := new(structpb.Struct)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}

				return srv.(IncidentServiceServer).WatchSensor(req,
					&grpc.GenericServerStream[structpb.Struct, structpb.ListValue]{ServerStream: stream})
			},
		},
	},
	Metadata: "breathe/incident/v1/incident.proto",
}

// unaryHandler builds the method handler of one unary call taking a Struct.
func unaryHandler[Resp any](
	fullMethod string,
	call func(IncidentServiceServer, context.Context, *structpb.Struct) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(IncidentServiceServer), ctx, req)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IncidentServiceServer), ctx, req.(*structpb.Struct))
		}

		return interceptor(ctx, req, info, handler)
	}
}
