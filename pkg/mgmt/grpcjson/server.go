package grpcjson

import (
    "context"
    "crypto/tls"
    "net"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-failover/pkg/mgmt"
    "github.com/amirimatin/go-failover/pkg/observability/tracing"
)

// Server implements mgmt.Server over gRPC using a JSON codec.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over the gRPC JSON codec
type empty struct{}
type statusBlob struct {
    Data []byte `json:"data"`
}

// managementServer defines the methods we expose.
type managementServer interface {
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
    Trigger(ctx context.Context, in *mgmt.TriggerRequest) (*mgmt.TriggerResponse, error)
    Pause(ctx context.Context, in *mgmt.PauseRequest) (*mgmt.PauseResponse, error)
    Resume(ctx context.Context, in *mgmt.ResumeRequest) (*mgmt.ResumeResponse, error)
}

type mgmtImpl struct {
    status  mgmt.StatusFunc
    trigger mgmt.TriggerFunc
    pause   mgmt.PauseFunc
    resume  mgmt.ResumeFunc
}

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    defer end()
    b, err := m.status(ctx)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

func (m *mgmtImpl) Trigger(ctx context.Context, in *mgmt.TriggerRequest) (*mgmt.TriggerResponse, error) {
    if in == nil { in = &mgmt.TriggerRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.trigger")
    defer end()
    out, err := m.trigger(ctx, *in)
    if err != nil { return &mgmt.TriggerResponse{Accepted: false, Error: err.Error()}, nil }
    return &out, nil
}

func (m *mgmtImpl) Pause(ctx context.Context, in *mgmt.PauseRequest) (*mgmt.PauseResponse, error) {
    if in == nil { in = &mgmt.PauseRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.pause")
    defer end()
    out, err := m.pause(ctx, *in)
    if err != nil { return &mgmt.PauseResponse{Accepted: false, Error: err.Error()}, nil }
    return &out, nil
}

func (m *mgmtImpl) Resume(ctx context.Context, in *mgmt.ResumeRequest) (*mgmt.ResumeResponse, error) {
    if in == nil { in = &mgmt.ResumeRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.resume")
    defer end()
    out, err := m.resume(ctx, *in)
    if err != nil { return &mgmt.ResumeResponse{Accepted: false, Error: err.Error()}, nil }
    return &out, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Management_serviceDesc = grpc.ServiceDesc{
    ServiceName: "failover.v1.Management",
    HandlerType: (*managementServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "GetStatus", Handler: _Management_GetStatus_Handler},
        {MethodName: "Trigger", Handler: _Management_Trigger_Handler},
        {MethodName: "Pause", Handler: _Management_Pause_Handler},
        {MethodName: "Resume", Handler: _Management_Resume_Handler},
    },
}

func _Management_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/failover.v1.Management/GetStatus"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Trigger_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(mgmt.TriggerRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Trigger(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/failover.v1.Management/Trigger"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Trigger(ctx, req.(*mgmt.TriggerRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Pause_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(mgmt.PauseRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Pause(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/failover.v1.Management/Pause"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Pause(ctx, req.(*mgmt.PauseRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Resume_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(mgmt.ResumeRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Resume(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/failover.v1.Management/Resume"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Resume(ctx, req.(*mgmt.ResumeRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, status mgmt.StatusFunc, trigger mgmt.TriggerFunc, pause mgmt.PauseFunc, resume mgmt.ResumeFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    srv.RegisterService(&_Management_serviceDesc, &mgmtImpl{status: status, trigger: trigger, pause: pause, resume: resume})

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2 * time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

func (s *Server) Addr() string { return s.bind }

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}

var _ mgmt.Server = (*Server)(nil)
