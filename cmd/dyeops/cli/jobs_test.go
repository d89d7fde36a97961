package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestTriggerKnownJobs(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq}

	for _, name := range TriggerNames() {
		info, err := c.Trigger(context.Background(), name)
		require.NoError(t, err)
		require.Equal(t, name, info.Type)
	}
	require.Len(t, enq.tasks, 3)

	_, err := c.Trigger(context.Background(), "finance:close")
	require.ErrorContains(t, err, "unsupported job")
}

func TestRunWritesSummary(t *testing.T) {
	c := &JobsCLI{
		client:    &fakeEnqueuer{},
		inspector: fakeInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 4, Retry: 1}},
	}

	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"trigger", jobs.TaskLowStockScan}, &out))
	require.Contains(t, out.String(), "enqueued inventory:low_stock_scan")

	out.Reset()
	require.NoError(t, c.Run(context.Background(), []string{"stats"}, &out))
	require.Contains(t, out.String(), "pending=4")
	require.Contains(t, out.String(), "retry=1")

	require.Error(t, c.Run(context.Background(), nil, &out))
	require.Error(t, c.Run(context.Background(), []string{"purge"}, &out))
}

func TestInspectQueueError(t *testing.T) {
	c := &JobsCLI{inspector: fakeInspector{err: errors.New("redis down")}}
	_, err := c.InspectQueue()
	require.Error(t, err)
}
