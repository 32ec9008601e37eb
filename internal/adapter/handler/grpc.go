package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/services"
)

// JSONCodecName is the content subtype used by the RiskService transport.
const JSONCodecName = "json"

const riskServiceName = "vantage.RiskService"

// jsonCodec carries plain Go structs as JSON. Protobuf messages, such as the
// well-known types, go through protojson.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		if len(data) == 0 {
			proto.Reset(m)
			return nil
		}
		return protojson.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type RecommendResponse struct {
	Recommendations []domain.TemplateRecommendation `json:"recommendations"`
	Count           int                             `json:"count"`
}

// RiskServiceServer is the server API for vantage.RiskService.
type RiskServiceServer interface {
	Assess(context.Context, *services.AssessRequest) (*domain.ComprehensiveAssessment, error)
	RecommendTemplates(context.Context, *services.RecommendRequest) (*RecommendResponse, error)
	MarketSnapshot(context.Context, *emptypb.Empty) (*domain.MarketSnapshot, error)
}

// RiskServiceDesc describes vantage.RiskService for grpc.Server.RegisterService.
var RiskServiceDesc = grpc.ServiceDesc{
	ServiceName: riskServiceName,
	HandlerType: (*RiskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assess", Handler: assessHandler},
		{MethodName: "RecommendTemplates", Handler: recommendHandler},
		{MethodName: "MarketSnapshot", Handler: marketSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vantage/risk_service",
}

func assessHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(services.AssessRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskServiceServer).Assess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + riskServiceName + "/Assess"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RiskServiceServer).Assess(ctx, req.(*services.AssessRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func recommendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(services.RecommendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskServiceServer).RecommendTemplates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + riskServiceName + "/RecommendTemplates"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RiskServiceServer).RecommendTemplates(ctx, req.(*services.RecommendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func marketSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskServiceServer).MarketSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + riskServiceName + "/MarketSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RiskServiceServer).MarketSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type GrpcServer struct {
	svc Services
}

var _ RiskServiceServer = (*GrpcServer)(nil)

func NewGrpcServer(svc Services) *GrpcServer {
	return &GrpcServer{svc: svc}
}

// NewRiskGRPCServer builds a grpc.Server with logging and token interceptors and
// registers the risk service on it.
func NewRiskGRPCServer(svc Services, authToken string, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(unaryLoggingInterceptor, unaryAuthInterceptor(authToken)))
	s := grpc.NewServer(opts...)
	s.RegisterService(&RiskServiceDesc, NewGrpcServer(svc))
	return s
}

func (s *GrpcServer) Assess(ctx context.Context, req *services.AssessRequest) (*domain.ComprehensiveAssessment, error) {
	comp, err := s.svc.Risk.Assess(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return comp, nil
}

func (s *GrpcServer) RecommendTemplates(ctx context.Context, req *services.RecommendRequest) (*RecommendResponse, error) {
	recs, err := s.svc.Templates.Recommend(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecommendResponse{Recommendations: recs, Count: len(recs)}, nil
}

func (s *GrpcServer) MarketSnapshot(ctx context.Context, _ *emptypb.Empty) (*domain.MarketSnapshot, error) {
	snap, err := s.svc.Market.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return snap, nil
}

func toStatus(err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, "resource already exists")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	default:
		zap.L().Error("grpc request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func unaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	zap.L().Info("grpc request",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, err
}

func unaryAuthInterceptor(token string) grpc.UnaryServerInterceptor {
	expected := []byte("Bearer " + token)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 || subtle.ConstantTimeCompare([]byte(values[0]), expected) != 1 {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return handler(ctx, req)
	}
}

// RiskServiceClient calls vantage.RiskService using the JSON codec.
type RiskServiceClient struct {
	cc    grpc.ClientConnInterface
	token string
}

// NewRiskServiceClient returns a client. A non-empty token is sent as a
// bearer credential on every call.
func NewRiskServiceClient(cc grpc.ClientConnInterface, token string) *RiskServiceClient {
	return &RiskServiceClient{cc: cc, token: token}
}

func (c *RiskServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+riskServiceName+"/"+method, in, out, opts...)
}

func (c *RiskServiceClient) Assess(ctx context.Context, in *services.AssessRequest, opts ...grpc.CallOption) (*domain.ComprehensiveAssessment, error) {
	out := new(domain.ComprehensiveAssessment)
	if err := c.invoke(ctx, "Assess", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RiskServiceClient) RecommendTemplates(ctx context.Context, in *services.RecommendRequest, opts ...grpc.CallOption) (*RecommendResponse, error) {
	out := new(RecommendResponse)
	if err := c.invoke(ctx, "RecommendTemplates", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RiskServiceClient) MarketSnapshot(ctx context.Context, opts ...grpc.CallOption) (*domain.MarketSnapshot, error) {
	out := new(domain.MarketSnapshot)
	if err := c.invoke(ctx, "MarketSnapshot", &emptypb.Empty{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
