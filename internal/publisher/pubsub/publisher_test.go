package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "toolshots-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub := New(client)
	defer pub.Close()

	id, err := pub.Publish(ctx, "runs", map[string]any{"run_id": "abc", "captured": 2})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "application/json", msgs[0].Attributes["content-type"])

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "abc", got["run_id"])
	assert.EqualValues(t, 2, got["captured"])
}

func TestPublishMissingTopic(t *testing.T) {
	client, _ := newTestClient(t)
	pub := New(client)
	defer pub.Close()

	_, err := pub.Publish(context.Background(), "does-not-exist", "payload")
	assert.Error(t, err)
}

func TestPublishValidation(t *testing.T) {
	_, err := New(nil).Publish(context.Background(), "runs", "x")
	assert.Error(t, err)

	client, _ := newTestClient(t)
	pub := New(client)
	defer pub.Close()

	_, err = pub.Publish(context.Background(), "", "x")
	assert.Error(t, err)
	_, err = pub.Publish(context.Background(), "runs", func() {})
	assert.Error(t, err)
}
