package grpc_control

import (
	"context"
	"errors"
	"strings"

	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "nepse.observer.Control"

// -----------------------------------------------------------------------------

// JobController is the scheduler surface exposed over gRPC.
type JobController interface {
	Statuses() []models.MJobStatus
	Status(name string) (models.MJobStatus, error)
	Trigger(name string) (string, error)
}

// ControlServer is the handler type of the control service.
type ControlServer interface {
	ListJobs(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error)
	GetJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	RunJob(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ControlService lists and triggers jobs, and keeps the standard health
// service in step with job outcomes: each job is a health service name that
// reports NOT_SERVING while its last run failed.
type ControlService struct {
	Jobs   JobController
	Health *health.Server
	Logger *logger.Logger
}

var _ ControlServer = (*ControlService)(nil)

// NewControlService creates a new instance of ControlService
func NewControlService(jobs JobController, log *logger.Logger) *ControlService {
	s := &ControlService{Jobs: jobs, Health: health.NewServer(), Logger: log}
	s.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.Health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	for _, st := range jobs.Statuses() {
		s.OnJobStatus(st)
	}
	return s
}

// OnJobStatus mirrors a job status into the health service.
func (s *ControlService) OnJobStatus(st models.MJobStatus) {
	serving := healthpb.HealthCheckResponse_SERVING
	if st.Status == models.JobFailed {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.Health.SetServingStatus(st.JobName, serving)
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListJobs(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error) {
	list, err := statusesToList(s.Jobs.Statuses())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return list, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	name := strings.TrimSpace(req.GetValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	st, err := s.Jobs.Status(name)
	if err != nil {
		return nil, jobStatusError(err)
	}
	out, err := statusToStruct(st)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// RunJob starts a job in the background and answers with its run id.
func (s *ControlService) RunJob(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	name := strings.TrimSpace(req.GetValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	runID, err := s.Jobs.Trigger(name)
	if err != nil {
		return nil, jobStatusError(err)
	}
	s.Logger.Info("gRPC: run of %s accepted (%s)", name, runID)
	return wrapperspb.String(runID), nil
}

func jobStatusError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, scheduler.ErrJobRunning):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, scheduler.ErrStopping):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// -----------------------------------------------------------------------------
// Service registration
// -----------------------------------------------------------------------------

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListJobs", Handler: listJobsHandler},
		{MethodName: "GetJob", Handler: getJobHandler},
		{MethodName: "RunJob", Handler: runJobHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grpc_control",
}

func listJobsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).ListJobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListJobs"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).ListJobs(ctx, req.(*emptypb.Empty))
	})
}

func getJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetJob"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).GetJob(ctx, req.(*wrapperspb.StringValue))
	})
}

func runJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).RunJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RunJob"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).RunJob(ctx, req.(*wrapperspb.StringValue))
	})
}
