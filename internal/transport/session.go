// Package transport carries frames between drones and the team server over a
// bidirectional gRPC stream.
//
// Each stream message is a wrapperspb.BytesValue holding one wire frame, so the
// default protobuf codec applies and no generated code is required.
package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName       = "hive.Session"
	ConnectFullMethod = "/hive.Session/Connect"
)

type (
	SessionConnectServer = grpc.BidiStreamingServer[wrapperspb.BytesValue, wrapperspb.BytesValue]
	SessionConnectClient = grpc.BidiStreamingClient[wrapperspb.BytesValue, wrapperspb.BytesValue]
)

// SessionServer is the server API of the session service.
type SessionServer interface {
	Connect(SessionConnectServer) error
}

// SessionClient is the client API of the session service.
type SessionClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (SessionConnectClient, error)
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SessionServer).Connect(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ServerStream: stream})
}

// SessionServiceDesc is the grpc.ServiceDesc of the session service.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "hive/session.proto",
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

type sessionClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionClient(cc grpc.ClientConnInterface) SessionClient {
	return &sessionClient{cc: cc}
}

func (c *sessionClient) Connect(ctx context.Context, opts ...grpc.CallOption) (SessionConnectClient, error) {
	stream, err := c.cc.NewStream(ctx, &SessionServiceDesc.Streams[0], ConnectFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ClientStream: stream}, nil
}
