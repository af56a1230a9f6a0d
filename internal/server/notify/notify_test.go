package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestJobEvents_Record(t *testing.T) {
	pub := &fakePublisher{}
	e := NewJobEvents(pub)

	res := jobs.Result{RunID: "r1", Kind: jobs.KindCronEvents, Status: jobs.StatusSucceeded, Count: 3}
	require.NoError(t, e.Record(context.Background(), res))

	assert.Equal(t, "backoffice.jobs.cron-events", pub.subject)
	var got jobs.Result
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, int64(3), got.Count)
}

func TestJobEvents_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	err := NewJobEvents(pub).Record(context.Background(), jobs.Result{Kind: jobs.KindCleanupTokens})
	assert.EqualError(t, err, "no responders")
}

func TestJobEvents_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewJobEvents(pub).Record(ctx, jobs.Result{Kind: jobs.KindCleanupTokens})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.subject)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", logging.Nop())
	assert.ErrorContains(t, err, "connect to NATS")
}
