package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-hub/relay/internal/db"
	"github.com/collab-hub/relay/internal/model"
)

func newTestRepo(t *testing.T) *ChatRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	return NewChatRepository(testDB)
}

func TestCreateOrGetConversation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetConversation(ctx, "alice", "bob")
	assert.ErrorIs(t, err, model.ErrConversationNotFound)

	created, err := repo.CreateOrGetConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, created.Members)

	again, err := repo.CreateOrGetConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, []string{"alice", "bob"}, again.Members)

	got, err := repo.GetConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.CreateOrGetConversation(ctx, "", "bob")
	assert.ErrorIs(t, err, model.ErrMembersRequired)
	_, err = repo.GetConversation(ctx, "alice", "")
	assert.ErrorIs(t, err, model.ErrMembersRequired)
}

func TestAddMessageUpdatesLastMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	conv, err := repo.CreateOrGetConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	first, err := repo.AddMessage(ctx, &model.AddMessageRequest{
		ConversationID: conv.ID, SenderID: "alice", ReceiverID: "bob", Text: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeText, first.Type)

	_, err = repo.AddMessage(ctx, &model.AddMessageRequest{
		ConversationID: conv.ID, SenderID: "bob", ReceiverID: "alice", Text: "hello", Type: "code",
	})
	require.NoError(t, err)

	got, err := repo.GetConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.LastMessage)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	messages, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Text)
	assert.Equal(t, "hello", messages[1].Text)
	assert.Equal(t, "code", messages[1].Type)
	assert.Equal(t, "bob", messages[1].SenderID)
}

func TestAddMessageValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddMessage(ctx, &model.AddMessageRequest{SenderID: "a", ReceiverID: "b"})
	assert.ErrorIs(t, err, model.ErrMessageFieldsRequired)

	_, err = repo.AddMessage(ctx, &model.AddMessageRequest{ConversationID: "nope", SenderID: "a", ReceiverID: "b"})
	assert.ErrorIs(t, err, model.ErrConversationNotFound)

	messages, err := repo.ListMessages(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

// Messages come back in the order they were added, whoever sent them.
func TestMessageOrderProperty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("list preserves insertion order", prop.ForAll(
		func(senders []bool) bool {
			run++
			a, b := fmt.Sprintf("a%d", run), fmt.Sprintf("b%d", run)
			conv, err := repo.CreateOrGetConversation(ctx, a, b)
			if err != nil {
				return false
			}
			for i, fromA := range senders {
				from, to := a, b
				if !fromA {
					from, to = b, a
				}
				_, err := repo.AddMessage(ctx, &model.AddMessageRequest{
					ConversationID: conv.ID, SenderID: from, ReceiverID: to, Text: fmt.Sprint(i),
				})
				if err != nil {
					return false
				}
			}
			messages, err := repo.ListMessages(ctx, conv.ID)
			if err != nil || len(messages) != len(senders) {
				return false
			}
			for i, m := range messages {
				if m.Text != fmt.Sprint(i) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.Bool()),
	))

	properties.TestingRun(t)
}
