package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
)

// #region methods
const (
	serviceName   = "hbrl.sampler.v1.Sampler"
	compileMethod = "/" + serviceName + "/Compile"
	fitMethod     = "/" + serviceName + "/Fit"
)

// #endregion methods

// #region messages
// Both RPCs carry google.protobuf.Struct; these types fix the field names.

type compileRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type compileResponse struct {
	Handle string `json:"handle"`
}

// fitRequest asks for a single chain.
type fitRequest struct {
	Handle     string             `json:"handle"`
	Data       map[string]any     `json:"data"`
	Init       sampler.InitValues `json:"init,omitempty"`
	Seed       int64              `json:"seed"`
	ChainID    int                `json:"chain_id"`
	NumSamples int                `json:"num_samples,omitempty"`
	NumWarmup  int                `json:"num_warmup,omitempty"`
}

type fitResponse struct {
	Draws posterior.Draws `json:"draws"`
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// #endregion messages

// #region service
// Service is the sampler sidecar API. The client side dials it over gRPC;
// RegisterService exposes any implementation on a grpc.Server.
type Service interface {
	Compile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Fit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// grpcService invokes the sidecar methods on a connection.
type grpcService struct {
	cc grpc.ClientConnInterface
}

func (s grpcService) Compile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := s.cc.Invoke(ctx, compileMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s grpcService) Fit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := s.cc.Invoke(ctx, fitMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service

// #region server
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: unaryHandler(compileMethod, Service.Compile)},
		{MethodName: "Fit", Handler: unaryHandler(fitMethod, Service.Fit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hbrl/sampler/v1/sampler.proto",
}

// RegisterService exposes svc as the sampler sidecar on s.
func RegisterService(s grpc.ServiceRegistrar, svc Service) {
	s.RegisterService(&serviceDesc, svc)
}

type unaryFunc func(Service, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryFunc) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Service), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Service), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion server
