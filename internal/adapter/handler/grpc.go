package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hive-corporation/iocscope/internal/core/service"
)

// The lookup service speaks google.protobuf.Struct in both directions, so no generated
// code is needed. Requests carry {"text": "..."}; responses mirror the REST bodies.
const (
	lookupServiceName = "iocscope.v1.Lookup"
	extractMethod     = "/" + lookupServiceName + "/Extract"
	lookupMethod      = "/" + lookupServiceName + "/Lookup"
)

// LookupServer is the server API for the iocscope.v1.Lookup service.
type LookupServer interface {
	Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Lookup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var LookupServiceDesc = grpc.ServiceDesc{
	ServiceName: lookupServiceName,
	HandlerType: (*LookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler(extractMethod, LookupServer.Extract)},
		{MethodName: "Lookup", Handler: unaryHandler(lookupMethod, LookupServer.Lookup)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "iocscope/v1/lookup.proto",
}

func RegisterLookupServer(s grpc.ServiceRegistrar, srv LookupServer) {
	s.RegisterService(&LookupServiceDesc, srv)
}

type unaryMethod func(LookupServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(LookupServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(LookupServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GrpcServer struct {
	api    LookupAPI
	logger *slog.Logger
}

func NewGrpcServer(api LookupAPI, logger *slog.Logger) *GrpcServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcServer{api: api, logger: logger}
}

func (s *GrpcServer) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	text, err := requestText(req)
	if err != nil {
		return nil, err
	}

	tokens := s.api.Extract(text)
	return toStruct(map[string]any{
		"success": len(tokens) > 0,
		"count":   len(tokens),
		"iocs":    tokens,
	})
}

func (s *GrpcServer) Lookup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	text, err := requestText(req)
	if err != nil {
		return nil, err
	}

	report, err := s.api.Lookup(ctx, text)
	if err != nil {
		if errors.Is(err, service.ErrNoIndicators) {
			return nil, status.Error(codes.InvalidArgument, "No valid IOCs detected")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		s.logger.Error("grpc lookup failed", "error", err)
		return nil, status.Error(codes.Internal, "lookup failed")
	}

	return toStruct(lookupResponse{
		Success: true,
		Message: fmt.Sprintf("Looked up %d IOCs", len(report.Results)),
		Results: report.Results,
	})
}

func requestText(req *structpb.Struct) (string, error) {
	text := req.GetFields()["text"].GetStringValue()
	if strings.TrimSpace(text) == "" {
		return "", status.Error(codes.InvalidArgument, "text cannot be empty")
	}
	return text, nil
}

// toStruct converts any JSON-encodable value into a Struct via its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to convert response: %v", err)
	}
	return out, nil
}

// LookupClient calls the iocscope.v1.Lookup service.
type LookupClient struct {
	cc grpc.ClientConnInterface
}

func NewLookupClient(cc grpc.ClientConnInterface) *LookupClient {
	return &LookupClient{cc: cc}
}

// Extract decodes the response into out, which must be a JSON target.
func (c *LookupClient) Extract(ctx context.Context, text string, out any) error {
	return c.invoke(ctx, extractMethod, text, out)
}

func (c *LookupClient) Lookup(ctx context.Context, text string, out any) error {
	return c.invoke(ctx, lookupMethod, text, out)
}

func (c *LookupClient) invoke(ctx context.Context, method, text string, out any) error {
	in, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, method, in, resp); err != nil {
		return err
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
