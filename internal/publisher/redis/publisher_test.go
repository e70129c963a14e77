package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeStreams struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStreams) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestPublishAddsStreamEntry(t *testing.T) {
	t.Parallel()

	fake := &fakeStreams{}
	p := &Publisher{client: fake, maxLen: 1000}

	id, err := p.Publish(context.Background(), "jobs.done", map[string]any{"job_id": "j1"})
	require.NoError(t, err)
	require.Equal(t, "1700000000000-0", id)

	require.Len(t, fake.args, 1)
	require.Equal(t, "jobs.done", fake.args[0].Stream)
	require.Equal(t, int64(1000), fake.args[0].MaxLen)
	require.True(t, fake.args[0].Approx)
	values, ok := fake.args[0].Values.(map[string]any)
	require.True(t, ok)
	require.JSONEq(t, `{"job_id":"j1"}`, values["payload"].(string))
}

func TestPublishWrapsErrors(t *testing.T) {
	t.Parallel()

	p := &Publisher{client: &fakeStreams{err: errors.New("READONLY")}}
	_, err := p.Publish(context.Background(), "jobs.done", "x")
	require.ErrorContains(t, err, "xadd jobs.done")

	_, err = p.Publish(context.Background(), "jobs.done", func() {})
	require.ErrorContains(t, err, "marshal payload")

	var nilPub *Publisher
	_, err = nilPub.Publish(context.Background(), "jobs.done", "x")
	require.Error(t, err)
}

func TestConnectRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{URL: "not a url"})
	require.ErrorContains(t, err, "parse redis url")
}
