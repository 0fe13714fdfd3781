package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careai/careai-go/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_ConversationRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetConversation(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	conv := domain.NewConversation("C1", "U1")
	conv.State["pending_service"] = "housing support"
	require.NoError(t, s.InsertConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, "U1", got.UserID)
	require.Equal(t, "New Conversation", got.Title)
	require.Equal(t, "housing support", got.State["pending_service"])
	require.Nil(t, got.CompletedAt)
	require.False(t, got.UpdatedAt.Before(got.CreatedAt))

	got.UpdatedAt = got.UpdatedAt.Add(time.Minute)
	got.State["step"] = float64(2)
	require.NoError(t, s.UpdateConversation(ctx, got))

	again, err := s.GetConversation(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, float64(2), again.State["step"])
	require.True(t, again.UpdatedAt.After(again.CreatedAt))
}

func TestSQLite_RecentMessagesSelectsNewestAscending(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.InsertConversation(ctx, domain.NewConversation("C1", "U1")))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		m := domain.NewMessage("C1", fmt.Sprintf("msg-%d", i), domain.RoleUser)
		m.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.InsertMessage(ctx, m))
	}

	msgs, err := s.RecentMessages(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 10)

	// the 10 newest of 15, in chronological order
	require.Equal(t, "msg-5", msgs[0].Content)
	require.Equal(t, "msg-14", msgs[9].Content)
	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
}

func TestSQLite_RecentMessagesShortHistory(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.InsertConversation(ctx, domain.NewConversation("C1", "U1")))
	m := domain.NewMessage("C1", "hello", domain.RoleUser)
	m.Metadata["source"] = "api"
	require.NoError(t, s.InsertMessage(ctx, m))

	msgs, err := s.RecentMessages(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, domain.RoleUser, msgs[0].Role)
	require.Equal(t, "api", msgs[0].Metadata["source"])

	empty, err := s.RecentMessages(ctx, "other", 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}
