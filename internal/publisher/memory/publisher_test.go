package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New(nil)
	id1, err := pub.Publish(context.Background(), "snapshots", map[string]string{"kind": "page"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "snapshots", msgs[0].Topic)
	require.Equal(t, "memory-2", msgs[1].ID)

	msgs[0].Topic = "modified"
	require.Equal(t, "snapshots", pub.Messages()[0].Topic, "Messages() must return a copy")

	require.Equal(t, []any{"payload"}, pub.Topic("other"))
	require.Empty(t, pub.Topic("missing"))
}
