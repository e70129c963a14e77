package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "jobcore-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "jobs-done")
	require.NoError(t, err)

	p := New(client)
	t.Cleanup(func() { _ = p.Close() })
	return p, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	p, srv := newTestPublisher(t)
	id, err := p.Publish(context.Background(), "jobs-done", map[string]any{"job_id": "j1", "status": "succeeded"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "j1", got["job_id"])
	require.Equal(t, "succeeded", got["status"])
}

func TestPublishUnknownTopicFails(t *testing.T) {
	t.Parallel()

	p, _ := newTestPublisher(t)
	_, err := p.Publish(context.Background(), "missing", map[string]any{})
	require.Error(t, err)
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	p, _ := newTestPublisher(t)
	_, err := p.Publish(context.Background(), "jobs-done", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestNilPublisher(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "t", nil)
	require.Error(t, err)
	require.NoError(t, p.Close())

	_, err = Dial(context.Background(), "")
	require.Error(t, err)
}

func TestAttributeCarrier(t *testing.T) {
	t.Parallel()

	c := &attributeCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
