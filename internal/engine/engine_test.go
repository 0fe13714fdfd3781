package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/careai/careai-go/internal/domain"
	"github.com/careai/careai-go/internal/llm"
	"github.com/careai/careai-go/internal/store"
)

type mockLLM struct {
	requests []openai.ChatCompletionRequest
	calls    []openai.ChatCompletionResponse
	err      error
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured")
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func textResponse(s string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: s}}},
	}
}

func newTestEngine(mock *mockLLM) (*Engine, *store.Memory) {
	st := store.NewMemory()
	return New(st, llm.NewCompleterWithClient(mock, "gpt-4")), st
}

func disabledEngine() (*Engine, *store.Memory) {
	st := store.NewMemory()
	return New(st, llm.NewCompleterWithClient(nil, "")), st
}

func TestHandleTurn_GeneralInquiry(t *testing.T) {
	mock := &mockLLM{calls: []openai.ChatCompletionResponse{
		textResponse("Happy to help with that."),
		textResponse("GeneralInquiry"),
	}}
	e, st := newTestEngine(mock)

	out, err := e.HandleTurn(context.Background(), "C1", "U1", "hello there")
	require.NoError(t, err)
	require.Equal(t, "Happy to help with that.", out)
	require.Len(t, mock.requests, 2, "no service call for a general inquiry")

	msgs, err := st.RecentMessages(context.Background(), "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleUser, msgs[0].Role)
	require.Equal(t, "hello there", msgs[0].Content)
	require.Equal(t, domain.RoleAssistant, msgs[1].Role)
	require.Equal(t, "Happy to help with that.", msgs[1].Content)

	conv, err := st.GetConversation(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, "U1", conv.UserID)
	require.False(t, conv.UpdatedAt.Before(conv.CreatedAt))
}

func TestHandleTurn_ServiceIntent(t *testing.T) {
	mock := &mockLLM{calls: []openai.ChatCompletionResponse{
		textResponse("I understand rent can be a burden."),
		textResponse("housing support, utility bill help"),
		textResponse("Here are housing support programs near you."),
	}}
	e, st := newTestEngine(mock)

	out, err := e.HandleTurn(context.Background(), "C1", "U1", "I need help paying rent")
	require.NoError(t, err)
	require.Equal(t, "I understand rent can be a burden.\n\nHere are housing support programs near you.", out)
	require.Len(t, mock.requests, 3)

	// classification sees the raw message, not the context window
	classifyReq := mock.requests[1]
	require.Len(t, classifyReq.Messages, 2)
	require.Equal(t, "I need help paying rent", classifyReq.Messages[1].Content)

	// service call names the primary category
	serviceReq := mock.requests[2]
	require.Contains(t, serviceReq.Messages[0].Content, "housing support")
	require.Contains(t, serviceReq.Messages[1].Content, "userMessage: I need help paying rent")
	require.Equal(t, 500, serviceReq.MaxTokens)
	require.InDelta(t, 0.5, serviceReq.Temperature, 0.001)

	msgs, err := st.RecentMessages(context.Background(), "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, out, msgs[1].Content)
}

func TestHandleTurn_ProviderDisabled(t *testing.T) {
	e, _ := disabledEngine()

	out, err := e.HandleTurn(context.Background(), "C1", "U1", "I need help paying rent")
	require.NoError(t, err)
	require.Equal(t, "I'm sorry, but the AI service is currently unavailable. Please try again later or contact support if the issue persists.", out)
}

func TestHandleTurn_ProviderErrorDegradesToApology(t *testing.T) {
	mock := &mockLLM{err: errors.New("connection reset")}
	e, _ := newTestEngine(mock)

	out, err := e.HandleTurn(context.Background(), "C1", "U1", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Equal(t, processErrorMessage, out)
}

func TestHandleTurn_Validation(t *testing.T) {
	e, st := newTestEngine(&mockLLM{})
	ctx := context.Background()

	_, err := e.HandleTurn(ctx, "", "U1", "hi")
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.HandleTurn(ctx, "C1", "  ", "hi")
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.HandleTurn(ctx, "C1", "U1", "   ")
	require.ErrorIs(t, err, ErrValidation)

	// rejected before any I/O
	_, err = st.GetConversation(ctx, "C1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleTurn_StorageFaultPropagates(t *testing.T) {
	boom := errors.New("disk full")
	st := &failingStore{Store: store.NewMemory(), insertMessageErr: boom}
	mock := &mockLLM{calls: []openai.ChatCompletionResponse{
		textResponse("reply"),
		textResponse("GeneralInquiry"),
	}}
	e := New(st, llm.NewCompleterWithClient(mock, "gpt-4"))

	_, err := e.HandleTurn(context.Background(), "C1", "U1", "hello")
	require.ErrorIs(t, err, boom)
}

func TestHandleTurn_RejectCompleted(t *testing.T) {
	e, st := newTestEngine(&mockLLM{})
	ctx := context.Background()

	done := time.Now().UTC()
	conv := domain.NewConversation("C1", "U1")
	conv.CompletedAt = &done
	require.NoError(t, st.InsertConversation(ctx, conv))

	e.RejectCompleted = true
	_, err := e.HandleTurn(ctx, "C1", "U1", "hello")
	require.ErrorIs(t, err, ErrConversationCompleted)
}

func TestGetOrCreateConversation_DoesNotOverwriteOwner(t *testing.T) {
	e, _ := newTestEngine(&mockLLM{})
	ctx := context.Background()

	first, err := e.GetOrCreateConversation(ctx, "C1", "U1")
	require.NoError(t, err)
	require.Equal(t, "U1", first.UserID)
	require.Equal(t, "New Conversation", first.Title)

	second, err := e.GetOrCreateConversation(ctx, "C1", "U2")
	require.NoError(t, err)
	require.Equal(t, "C1", second.ID)
	require.Equal(t, "U1", second.UserID, "existing conversation returned unchanged")
}

func TestStartConversation(t *testing.T) {
	e, st := newTestEngine(&mockLLM{})
	ctx := context.Background()

	id, err := e.StartConversation(ctx, "U1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := st.GetConversation(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "U1", conv.UserID)
	require.Contains(t, conv.Title, "Conversation ")

	_, err = e.StartConversation(ctx, " ")
	require.ErrorIs(t, err, ErrValidation)
}

type failingStore struct {
	store.Store
	insertMessageErr error
}

func (f *failingStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	if f.insertMessageErr != nil {
		return f.insertMessageErr
	}
	return f.Store.InsertMessage(ctx, m)
}
