package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewQueue(client, nil)
	q.blockFor = 50 * time.Millisecond
	return q, mr
}

func TestEnqueueDequeueNotification(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	regID := uuid.New()
	payload := NotificationPayload{
		Template:       "waitlist_promoted",
		EventID:        uuid.New(),
		RegistrationID: &regID,
		Placeholders:   map[string]string{"event_title": "Judo"},
	}
	require.NoError(t, q.EnqueueNotification(ctx, payload))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeNotification, job.Type)
	assert.Equal(t, 0, job.Attempt)

	var got NotificationPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	assert.Equal(t, payload, got)
}

func TestDequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueSkipsGarbage(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Push(QueueNotifications, "{not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRetryThenDeadLetter(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	job := &Job{ID: "j1", Type: JobTypeNotification, Payload: json.RawMessage(`{}`)}

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		assert.Equal(t, i, job.Attempt)
	}
	list, err := mr.List(QueueNotifications)
	require.NoError(t, err)
	assert.Len(t, list, MaxRetries-1)

	require.NoError(t, q.Retry(ctx, job))
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Len(t, dlq, 1)
}
