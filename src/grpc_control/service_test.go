package grpc_control

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var testLog = logger.NewLogger(nil, "ControlTest")

type fakeJobs struct {
	statuses []models.MJobStatus
	stopping bool
}

func (f *fakeJobs) Statuses() []models.MJobStatus { return f.statuses }

func (f *fakeJobs) Status(name string) (models.MJobStatus, error) {
	for _, st := range f.statuses {
		if st.JobName == name {
			return st, nil
		}
	}
	return models.MJobStatus{}, fmt.Errorf("%s: %w", name, scheduler.ErrJobNotFound)
}

func (f *fakeJobs) Trigger(name string) (string, error) {
	if f.stopping {
		return "", scheduler.ErrStopping
	}
	st, err := f.Status(name)
	if err != nil {
		return "", err
	}
	if st.Status == models.JobRunning {
		return "", scheduler.ErrJobRunning
	}
	return "run-1", nil
}

func startControl(t *testing.T, jobs *fakeJobs) (*Server, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer("bufnet", jobs, testLog)
	go srv.Serve(lis)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return srv, client
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func sampleJobs() *fakeJobs {
	return &fakeJobs{statuses: []models.MJobStatus{
		{JobName: "market_index", Status: models.JobSuccess, Schedule: "every 1m0s", LastRun: 1760500000123, TotalSuccess: 41},
		{JobName: "stock_prices", Status: models.JobRunning},
		{JobName: "price_history", Status: models.JobFailed, Message: "all 3 securities failed"},
	}}
}

// -----------------------------------------------------------------------------

func TestListAndGetJobs(t *testing.T) {
	_, client := startControl(t, sampleJobs())
	ctx := testCtx(t)

	jobs, err := client.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "every 1m0s", jobs[0].Schedule)
	assert.Equal(t, int64(1760500000123), jobs[0].LastRun)
	assert.Equal(t, int64(41), jobs[0].TotalSuccess)

	st, err := client.GetJob(ctx, "price_history")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, st.Status)
	assert.Equal(t, "all 3 securities failed", st.Message)

	_, err = client.GetJob(ctx, "nope")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetJob(ctx, " ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRunJobMapsSchedulerErrors(t *testing.T) {
	_, client := startControl(t, sampleJobs())
	ctx := testCtx(t)

	runID, err := client.RunJob(ctx, "market_index")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	_, err = client.RunJob(ctx, "stock_prices")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.RunJob(ctx, "archive_everything")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRunJobDuringShutdown(t *testing.T) {
	jobs := sampleJobs()
	jobs.stopping = true
	_, client := startControl(t, jobs)

	_, err := client.RunJob(testCtx(t), "market_index")
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestHealthFollowsJobOutcomes(t *testing.T) {
	srv, client := startControl(t, sampleJobs())
	ctx := testCtx(t)

	st, err := client.Health(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", st)

	st, err = client.Health(ctx, "market_index")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", st)

	st, err = client.Health(ctx, "price_history")
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", st)

	srv.Service.OnJobStatus(models.MJobStatus{JobName: "price_history", Status: models.JobSuccess})
	st, err = client.Health(ctx, "price_history")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", st)

	_, err = client.Health(ctx, "unregistered")
	assert.Equal(t, codes.NotFound, status.Code(err))

	srv.Service.Health.Shutdown()
	st, err = client.Health(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", st)
}
