package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careai/careai-go/internal/domain"
)

func TestMemory_RecentMessagesSelectsNewestAscending(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 12; i++ {
		m := domain.NewMessage("C1", fmt.Sprintf("msg-%d", i), domain.RoleAssistant)
		m.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.InsertMessage(ctx, m))
	}

	msgs, err := s.RecentMessages(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	require.Equal(t, "msg-2", msgs[0].Content)
	require.Equal(t, "msg-11", msgs[9].Content)
}

func TestMemory_GetOrUpdateConversation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.GetConversation(ctx, "C1")
	require.ErrorIs(t, err, ErrNotFound)

	conv := domain.NewConversation("C1", "U1")
	require.NoError(t, s.InsertConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, "U1", got.UserID)

	// returned value is a copy; mutating it must not affect the store
	got.Title = "changed"
	again, err := s.GetConversation(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, "New Conversation", again.Title)
}
