package counselv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "counsel.v1.Counsel"

// Full method names.
const (
	MethodTurn         = "/" + ServiceName + "/Turn"
	MethodEraseUser    = "/" + ServiceName + "/EraseUser"
	MethodRelationship = "/" + ServiceName + "/Relationship"
	MethodListOutreach = "/" + ServiceName + "/ListOutreach"
	MethodStatus       = "/" + ServiceName + "/Status"
)

// CounselServer is the server API for the Counsel service.
type CounselServer interface {
	Turn(context.Context, *TurnRequest) (*TurnResponse, error)
	EraseUser(context.Context, *EraseUserRequest) (*EraseUserResponse, error)
	Relationship(context.Context, *RelationshipRequest) (*RelationshipResponse, error)
	ListOutreach(context.Context, *ListOutreachRequest) (*ListOutreachResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// UnimplementedCounselServer returns Unimplemented for every method. Embed it
// to stay forward compatible.
type UnimplementedCounselServer struct{}

func (UnimplementedCounselServer) Turn(context.Context, *TurnRequest) (*TurnResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Turn not implemented")
}

func (UnimplementedCounselServer) EraseUser(context.Context, *EraseUserRequest) (*EraseUserResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method EraseUser not implemented")
}

func (UnimplementedCounselServer) Relationship(context.Context, *RelationshipRequest) (*RelationshipResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Relationship not implemented")
}

func (UnimplementedCounselServer) ListOutreach(context.Context, *ListOutreachRequest) (*ListOutreachResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOutreach not implemented")
}

func (UnimplementedCounselServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}

// RegisterCounselServer registers srv on s.
func RegisterCounselServer(s grpc.ServiceRegistrar, srv CounselServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts a typed method to grpc.MethodHandler.
func unaryHandler[Req any, Resp any](fullMethod string, call func(CounselServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CounselServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CounselServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the Counsel service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CounselServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Turn", Handler: unaryHandler(MethodTurn, CounselServer.Turn)},
		{MethodName: "EraseUser", Handler: unaryHandler(MethodEraseUser, CounselServer.EraseUser)},
		{MethodName: "Relationship", Handler: unaryHandler(MethodRelationship, CounselServer.Relationship)},
		{MethodName: "ListOutreach", Handler: unaryHandler(MethodListOutreach, CounselServer.ListOutreach)},
		{MethodName: "Status", Handler: unaryHandler(MethodStatus, CounselServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "counsel/v1/counsel.json",
}

// CounselClient is the client API for the Counsel service.
type CounselClient interface {
	Turn(ctx context.Context, in *TurnRequest, opts ...grpc.CallOption) (*TurnResponse, error)
	EraseUser(ctx context.Context, in *EraseUserRequest, opts ...grpc.CallOption) (*EraseUserResponse, error)
	Relationship(ctx context.Context, in *RelationshipRequest, opts ...grpc.CallOption) (*RelationshipResponse, error)
	ListOutreach(ctx context.Context, in *ListOutreachRequest, opts ...grpc.CallOption) (*ListOutreachResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
}

type counselClient struct {
	cc grpc.ClientConnInterface
}

// NewCounselClient returns a client that sends every call with the JSON
// codec.
func NewCounselClient(cc grpc.ClientConnInterface) CounselClient {
	return &counselClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *counselClient) Turn(ctx context.Context, in *TurnRequest, opts ...grpc.CallOption) (*TurnResponse, error) {
	return invoke[TurnResponse](ctx, c.cc, MethodTurn, in, opts)
}

func (c *counselClient) EraseUser(ctx context.Context, in *EraseUserRequest, opts ...grpc.CallOption) (*EraseUserResponse, error) {
	return invoke[EraseUserResponse](ctx, c.cc, MethodEraseUser, in, opts)
}

func (c *counselClient) Relationship(ctx context.Context, in *RelationshipRequest, opts ...grpc.CallOption) (*RelationshipResponse, error) {
	return invoke[RelationshipResponse](ctx, c.cc, MethodRelationship, in, opts)
}

func (c *counselClient) ListOutreach(ctx context.Context, in *ListOutreachRequest, opts ...grpc.CallOption) (*ListOutreachResponse, error) {
	return invoke[ListOutreachResponse](ctx, c.cc, MethodListOutreach, in, opts)
}

func (c *counselClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, MethodStatus, in, opts)
}
