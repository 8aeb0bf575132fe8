// Package grpcserver exposes the stub LinkMatch gRPC API.
package grpcserver

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/deferlink/internal/convert"
	"github.com/and161185/deferlink/internal/server/stub"
)

// LinkMatchServer is the server API for deferlink.v1.LinkMatch.
type LinkMatchServer interface {
	LookupByReferrer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MatchByFingerprint(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server wires the fixture backend into gRPC handlers.
type Server struct {
	backend *stub.Backend
}

var _ LinkMatchServer = (*Server)(nil)

// New constructs a gRPC server over backend.
func New(backend *stub.Backend) *Server {
	return &Server{backend: backend}
}

// LookupByReferrer answers a referrer lookup.
func (s *Server) LookupByReferrer(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := convert.ReferrerFromStruct(req)
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "empty referrer")
	}
	return toReply(s.backend.LookupByReferrer(token))
}

// MatchByFingerprint answers a fingerprint match.
func (s *Server) MatchByFingerprint(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fp, err := convert.FingerprintFromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad fingerprint: %v", err)
	}
	return toReply(s.backend.MatchByFingerprint(fp))
}

func toReply(r stub.Reply) (*structpb.Struct, error) {
	if r.Status != http.StatusOK {
		return nil, status.Error(codeFromHTTP(r.Status), http.StatusText(r.Status))
	}
	out, err := structpb.NewStruct(r.Body)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

// codeFromHTTP is the inverse of transport.HTTPStatusFromCode for the statuses fixtures use.
func codeFromHTTP(st int) codes.Code {
	switch {
	case st == http.StatusNotFound, st == http.StatusGone:
		return codes.NotFound
	case st == http.StatusUnauthorized:
		return codes.Unauthenticated
	case st == http.StatusForbidden:
		return codes.PermissionDenied
	case st == http.StatusConflict:
		return codes.AlreadyExists
	case st == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case st >= 400 && st < 500:
		return codes.InvalidArgument
	case st == http.StatusNotImplemented:
		return codes.Unimplemented
	case st == http.StatusServiceUnavailable, st == http.StatusBadGateway:
		return codes.Unavailable
	case st == http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv LinkMatchServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: convert.ServiceName,
	HandlerType: (*LinkMatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LookupByReferrer", Handler: lookupByReferrerHandler},
		{MethodName: "MatchByFingerprint", Handler: matchByFingerprintHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deferlink/v1/linkmatch.proto",
}

func lookupByReferrerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LinkMatchServer).LookupByReferrer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: convert.MethodLookupByReferrer}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LinkMatchServer).LookupByReferrer(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func matchByFingerprintHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LinkMatchServer).MatchByFingerprint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: convert.MethodMatchByFingerprint}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LinkMatchServer).MatchByFingerprint(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
