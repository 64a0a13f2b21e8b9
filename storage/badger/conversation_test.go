package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_CreateAndGet(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	conv, err := repos.Conversations.CreateConversation(ctx, &core.Conversation{Id: "c1", Tenant: "T1", Visitor: "sess"})
	require.NoError(t, err)
	assert.False(t, conv.StartedAt.IsZero())

	got, err := repos.Conversations.GetConversation(ctx, "T1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "sess", got.Visitor)

	_, err = repos.Conversations.GetConversation(ctx, "T2", "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repos.Conversations.CreateConversation(ctx, &core.Conversation{Id: "c1", Tenant: "T1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestConversationRepository_RecentMessages(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	_, err = repos.Conversations.CreateConversation(ctx, &core.Conversation{Id: "c1", Tenant: "T1"})
	require.NoError(t, err)
	_, err = repos.Conversations.CreateConversation(ctx, &core.Conversation{Id: "c10", Tenant: "T1"})
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleBot
		}
		_, err := repos.Conversations.AddMessages(ctx, &core.Message{
			Conversation: "c1",
			Tenant:       "T1",
			Role:         role,
			Text:         fmt.Sprintf("message %d", i),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err = repos.Conversations.AddMessages(ctx, &core.Message{
		Conversation: "c10", Tenant: "T1", Role: core.RoleUser, Text: "elsewhere", Timestamp: base.Add(time.Hour - time.Second),
	})
	require.NoError(t, err)

	recent, err := repos.Conversations.GetRecentMessages(ctx, "T1", "c1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "message 7", recent[0].Text)
	assert.Equal(t, "message 3", recent[4].Text)

	conv, err := repos.Conversations.GetConversation(ctx, "T1", "c1")
	require.NoError(t, err)
	assert.True(t, conv.LastUpdated.Equal(base.Add(7*time.Minute).Truncate(time.Microsecond)))
}

func TestConversationRepository_AddToUnknownConversation(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	_, err = repos.Conversations.AddMessages(context.Background(), &core.Message{
		Conversation: "missing", Tenant: "T1", Role: core.RoleUser, Text: "hi",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConversationRepository_Delete(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	_, err = repos.Conversations.CreateConversation(ctx, &core.Conversation{Id: "c1", Tenant: "T1"})
	require.NoError(t, err)
	_, err = repos.Conversations.AddMessages(ctx,
		&core.Message{Conversation: "c1", Tenant: "T1", Role: core.RoleUser, Text: "q"},
		&core.Message{Conversation: "c1", Tenant: "T1", Role: core.RoleBot, Text: "a"},
	)
	require.NoError(t, err)

	require.NoError(t, repos.Conversations.DeleteConversation(ctx, "T1", "c1"))

	_, err = repos.Conversations.GetConversation(ctx, "T1", "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	msgs, err := repos.Conversations.GetRecentMessages(ctx, "T1", "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConversationRepository_ListByLastUpdated(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		_, err := repos.Conversations.CreateConversation(ctx, &core.Conversation{
			Id: id, Tenant: "T1", StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err = repos.Conversations.CreateConversation(ctx, &core.Conversation{Id: "other", Tenant: "T10"})
	require.NoError(t, err)

	// A new message moves "old" to the front.
	_, err = repos.Conversations.AddMessages(ctx, &core.Message{
		Conversation: "old", Tenant: "T1", Role: core.RoleUser, Text: "still there?",
		Timestamp: base.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	convs, err := repos.Conversations.ListConversations(ctx, "T1")
	require.NoError(t, err)
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.Id
	}
	assert.Equal(t, []string{"old", "new", "mid"}, ids)

	convs, err = repos.Conversations.ListConversations(ctx, "T2")
	require.NoError(t, err)
	assert.Empty(t, convs)
}
