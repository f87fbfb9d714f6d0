package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/core"
	_ "github.com/nrjais/basestore/pkg/compress"
)

const (
	ServiceName = "basestore.v1.BaseStore"
	// ActorHeader carries the authenticated actor id set by the fronting gateway.
	ActorHeader = "x-actor-id"
)

// Server exposes the core service over gRPC. Every method takes and returns a
// google.protobuf.Struct holding the JSON-shaped request and response.
type Server struct {
	svc *core.Service
}

func NewServer(svc *core.Service) *Server {
	return &Server{svc: svc}
}

// Handler is the type checked by grpc when registering the service.
type Handler interface {
	Invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

type call func(s *Server, ctx context.Context, req args) (any, error)

var calls = map[string]call{
	"CreateBase":   (*Server).createBase,
	"GetBase":      (*Server).getBase,
	"ListBases":    (*Server).listBases,
	"DeleteBase":   (*Server).deleteBase,
	"CreateField":  (*Server).createField,
	"DeleteField":  (*Server).deleteField,
	"CreateOption": (*Server).createOption,
	"UpdateOption": (*Server).updateOption,
	"DeleteOption": (*Server).deleteOption,
	"ListOptions":  (*Server).listOptions,
	"CreateRecord": (*Server).createRecord,
	"GetRecord":    (*Server).getRecord,
	"ListRecords":  (*Server).listRecords,
	"DeleteRecord": (*Server).deleteRecord,
	"UpsertValue":  (*Server).upsertValue,
}

// Methods lists the unary methods of the service.
func Methods() []string {
	names := make([]string, 0, len(calls))
	for name := range calls {
		names = append(names, name)
	}
	return names
}

// FullMethod is the path used on the wire, e.g. /basestore.v1.BaseStore/GetRecord.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Invoke runs one method and converts its result and error for the wire.
func (s *Server) Invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	fn, ok := calls[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}
	out, err := fn(s, ctx, args(req.AsMap()))
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := toStruct(out)
	if err != nil {
		slog.Error("Failed to encode response", "method", method, "error", err)
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func methodHandler(method string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := srv.(Handler)
		if interceptor == nil {
			return h.Invoke(ctx, method, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h.Invoke(ctx, method, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
func ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*Handler)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "basestore/v1/basestore.proto",
	}
	for name := range calls {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: name, Handler: methodHandler(name)})
	}
	return desc
}

func Register(registrar grpc.ServiceRegistrar, srv Handler) {
	registrar.RegisterService(ServiceDesc(), srv)
}

// NewGRPCServer builds a grpc.Server with logging, panic recovery and the
// service registered.
func NewGRPCServer(svc *core.Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor, RecoveryInterceptor))
	s := grpc.NewServer(opts...)
	Register(s, NewServer(svc))
	return s
}

// LoggingInterceptor logs every call with its status code and response size.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	attrs := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	if m, ok := resp.(proto.Message); ok && err == nil {
		attrs = append(attrs, "size", humanize.Bytes(uint64(proto.Size(m))))
	}
	if code == codes.Internal || code == codes.Unknown {
		slog.Error("gRPC call failed", append(attrs, "error", err)...)
	} else {
		slog.Debug("gRPC call", attrs...)
	}
	return resp, err
}

// RecoveryInterceptor turns a panicking handler into an Internal error so one
// call cannot take the process down.
func RecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("gRPC handler panicked", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// toStatus maps the error taxonomy onto gRPC codes. Internal details stay in
// the server log.
func toStatus(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case apperr.KindConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case apperr.KindValidation, apperr.KindBadRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	}
	slog.Error("Internal error", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func toStruct(v any) (*structpb.Struct, error) {
	switch t := v.(type) {
	case nil:
		return &structpb.Struct{}, nil
	case map[string]any:
		return structpb.NewStruct(t)
	case []any:
		return structpb.NewStruct(map[string]any{"data": t})
	}
	return nil, errors.New("unsupported response type")
}

func actorFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(ActorHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}
