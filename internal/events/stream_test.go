package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

func newTestStream(t *testing.T) (*Stream, interfaces.StorageManager) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewStream(manager.EventStorage(), logger), manager
}

func collect(t *testing.T, ch <-chan *models.ProgressEvent, n int) []*models.ProgressEvent {
	t.Helper()
	var events []*models.ProgressEvent
	timeout := time.After(5 * time.Second)
	for len(events) < n {
		select {
		case event, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out collecting events: got %d of %d", len(events), n)
		}
	}
	return events
}

func TestStreamPublishAllocatesIDs(t *testing.T) {
	stream, _ := newTestStream(t)
	jobID := common.NewJobID()

	for i := 1; i <= 3; i++ {
		id, err := stream.Publish(context.Background(), jobID, models.EventProgress, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), id)
	}
}

func TestStreamLiveDelivery(t *testing.T) {
	stream, _ := newTestStream(t)
	jobID := common.NewJobID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := stream.Subscribe(ctx, jobID, 0)
	require.NoError(t, err)

	_, err = stream.Publish(context.Background(), jobID, models.EventURLStarted, models.URLStartedPayload("https://example.com/", 0))
	require.NoError(t, err)
	_, err = stream.Publish(context.Background(), jobID, models.EventJobCompleted, models.JobCompletedPayload(jobID, models.JobCounters{Processed: 1}))
	require.NoError(t, err)

	events := collect(t, ch, 2)
	assert.Equal(t, models.EventURLStarted, events[0].Type)
	assert.Equal(t, models.EventJobCompleted, events[1].Type)

	// Stream closes after the terminal event
	_, open := <-ch
	assert.False(t, open)
}

func TestStreamReplayAndResume(t *testing.T) {
	stream, _ := newTestStream(t)
	jobID := common.NewJobID()

	for i := 0; i < 5; i++ {
		_, err := stream.Publish(context.Background(), jobID, models.EventProgress, map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume after event 3: replay must deliver 4 and 5, no duplicates
	ch, err := stream.Subscribe(ctx, jobID, 3)
	require.NoError(t, err)

	events := collect(t, ch, 2)
	assert.Equal(t, uint64(4), events[0].EventID)
	assert.Equal(t, uint64(5), events[1].EventID)

	// New events continue after the replayed ones
	_, err = stream.Publish(context.Background(), jobID, models.EventProgress, nil)
	require.NoError(t, err)

	more := collect(t, ch, 1)
	assert.Equal(t, uint64(6), more[0].EventID)
}

func TestStreamNoDuplicatesAcrossReplayBoundary(t *testing.T) {
	stream, _ := newTestStream(t)
	jobID := common.NewJobID()

	_, err := stream.Publish(context.Background(), jobID, models.EventProgress, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := stream.Subscribe(ctx, jobID, 0)
	require.NoError(t, err)

	// Publish while the subscriber may still be replaying
	_, err = stream.Publish(context.Background(), jobID, models.EventProgress, nil)
	require.NoError(t, err)

	events := collect(t, ch, 2)
	assert.Equal(t, uint64(1), events[0].EventID)
	assert.Equal(t, uint64(2), events[1].EventID)
}

func TestStreamJobIsolation(t *testing.T) {
	stream, _ := newTestStream(t)
	jobA := common.NewJobID()
	jobB := common.NewJobID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA, err := stream.Subscribe(ctx, jobA, 0)
	require.NoError(t, err)

	_, err = stream.Publish(context.Background(), jobB, models.EventURLStarted, nil)
	require.NoError(t, err)
	_, err = stream.Publish(context.Background(), jobA, models.EventProgress, nil)
	require.NoError(t, err)

	events := collect(t, chA, 1)
	assert.Equal(t, jobA, events[0].JobID)
	assert.Equal(t, models.EventProgress, events[0].Type)

	select {
	case extra := <-chA:
		if extra != nil {
			t.Fatalf("subscriber of job A received event for %s", extra.JobID)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamMultipleSubscribers(t *testing.T) {
	stream, _ := newTestStream(t)
	jobID := common.NewJobID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := stream.Subscribe(ctx, jobID, 0)
	require.NoError(t, err)
	ch2, err := stream.Subscribe(ctx, jobID, 0)
	require.NoError(t, err)

	_, err = stream.Publish(context.Background(), jobID, models.EventProgress, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), collect(t, ch1, 1)[0].EventID)
	assert.Equal(t, uint64(1), collect(t, ch2, 1)[0].EventID)
}
