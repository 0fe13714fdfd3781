// Package engine implements the conversation orchestration core: it keeps
// per-conversation history, assembles bounded context windows, classifies
// user intent into social-service categories, and dispatches to a
// service-specific response path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/careai/careai-go/internal/domain"
	"github.com/careai/careai-go/internal/llm"
	"github.com/careai/careai-go/internal/logger"
	"github.com/careai/careai-go/internal/store"
)

// ErrValidation marks a missing or blank required input, rejected before
// any I/O. The transport layer maps it to a client error.
var ErrValidation = errors.New("validation failed")

// ErrConversationCompleted is returned when RejectCompleted is set and a
// turn arrives on a conversation whose CompletedAt is already set.
var ErrConversationCompleted = errors.New("conversation is completed")

// GeneralInquiry is the classifier fallback category: ordinary chat, no
// specialized routing.
const GeneralInquiry = "GeneralInquiry"

const (
	unavailableMessage  = "I'm sorry, but the AI service is currently unavailable. Please try again later or contact support if the issue persists."
	processErrorMessage = "I'm sorry, but I encountered an error while processing your message. Please try again later."
	serviceErrorMessage = "I'm sorry, but I encountered an error while processing your service request. Please try again later or contact support if the issue persists."
)

var (
	generalSampling  = llm.SamplingConfig{MaxTokens: 1000, Temperature: 0.7, TopP: 0.95}
	classifySampling = llm.SamplingConfig{MaxTokens: 150, Temperature: 0.3}
	serviceSampling  = llm.SamplingConfig{MaxTokens: 500, Temperature: 0.5}
)

// Engine orchestrates one conversation turn end to end. It is stateless
// between turns and safe for concurrent use; concurrent turns on the same
// conversation id may interleave their persisted messages.
type Engine struct {
	store     store.Store
	completer *llm.Completer

	// RejectCompleted makes HandleTurn refuse new messages on terminal
	// conversations. Off by default.
	RejectCompleted bool
}

func New(st store.Store, completer *llm.Completer) *Engine {
	return &Engine{store: st, completer: completer}
}

// StartConversation creates and persists a fresh conversation for the user,
// returning its id.
func (e *Engine) StartConversation(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", ErrValidation)
	}

	conv := domain.NewConversation("", userID)
	conv.Title = fmt.Sprintf("Conversation %s", time.Now().UTC().Format("2006-01-02"))
	if err := e.store.InsertConversation(ctx, conv); err != nil {
		return "", err
	}
	logger.L.Info("conversation started", "conversation_id", conv.ID, "user_id", userID)
	return conv.ID, nil
}

// GetOrCreateConversation loads the conversation, creating and persisting
// it with defaults when the id is unknown. An existing conversation is
// returned unchanged, whatever user id the caller supplies.
func (e *Engine) GetOrCreateConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	conv = domain.NewConversation(conversationID, userID)
	if err := e.store.InsertConversation(ctx, conv); err != nil {
		return nil, err
	}
	logger.L.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

// turn FSM states
type turnState stateless.State

var (
	stateReadyToReply turnState = "ReadyToReply"
	stateClassifying  turnState = "Classifying"
	stateDispatching  turnState = "Dispatching"
	statePersisting   turnState = "Persisting"
	stateDone         turnState = "Done"
	stateError        turnState = "Error"
)

// turn FSM triggers
type turnTrigger stateless.Trigger

var (
	triggerProcessTurn    turnTrigger = "ProcessTurn"
	triggerReplyProduced  turnTrigger = "ReplyProduced"
	triggerGeneralIntent  turnTrigger = "GeneralIntent"
	triggerServiceIntent  turnTrigger = "ServiceIntent"
	triggerServiceReplied turnTrigger = "ServiceReplied"
	triggerPersisted      turnTrigger = "Persisted"
	triggerErrorOccurred  turnTrigger = "ErrorOccurred"
)

// turnContext carries per-turn data through the state machine.
type turnContext struct {
	conversation *domain.Conversation
	message      string

	generalReply string
	category     string
	finalReply   string
	lastError    error
}

// HandleTurn processes one inbound user message and returns the final
// reply text. Completion-provider failures are absorbed into apology
// strings so the caller always receives some reply; storage faults are the
// only errors that propagate.
func (e *Engine) HandleTurn(ctx context.Context, conversationID, userID, message string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", fmt.Errorf("%w: conversation id is required", ErrValidation)
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrValidation)
	}

	conv, err := e.GetOrCreateConversation(ctx, conversationID, userID)
	if err != nil {
		return "", err
	}
	if e.RejectCompleted && conv.CompletedAt != nil {
		return "", ErrConversationCompleted
	}

	log := logger.With("conversation_id", conversationID, "user_id", userID)
	tc := &turnContext{conversation: conv, message: message}

	fsm := stateless.NewStateMachine(stateReadyToReply)

	// ReadyToReply: produce the general conversational reply from the
	// bounded context window. Window assembly reads the store, so failures
	// here are storage faults; completion failures degrade to an apology.
	fsm.Configure(stateReadyToReply).
		PermitReentry(triggerProcessTurn).
		OnEntry(func(ctx context.Context, _ ...any) error {
			window, err := e.buildWindow(ctx, conversationID, message)
			if err != nil {
				tc.lastError = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			reply, err := e.completer.Complete(ctx, window, generalSampling)
			switch {
			case err == nil:
				tc.generalReply = reply
			case !e.completer.Enabled():
				log.Warn("completion provider disabled; returning static reply")
				tc.generalReply = unavailableMessage
			default:
				log.Error("general completion failed", "error", err)
				tc.generalReply = processErrorMessage
			}
			return fsm.FireCtx(ctx, triggerReplyProduced)
		}).
		Permit(triggerReplyProduced, stateClassifying).
		Permit(triggerErrorOccurred, stateError)

	// Classifying: label the raw message with a service category,
	// independently of the context window. Best effort: any failure means
	// GeneralInquiry and no specialized routing.
	fsm.Configure(stateClassifying).
		OnEntry(func(ctx context.Context, _ ...any) error {
			tc.category = e.Classify(ctx, message)
			if tc.category == GeneralInquiry {
				tc.finalReply = tc.generalReply
				return fsm.FireCtx(ctx, triggerGeneralIntent)
			}
			log.Info("service intent detected", "category", tc.category)
			return fsm.FireCtx(ctx, triggerServiceIntent)
		}).
		Permit(triggerGeneralIntent, statePersisting).
		Permit(triggerServiceIntent, stateDispatching)

	// Dispatching: second, service-specific completion appended after the
	// general reply.
	fsm.Configure(stateDispatching).
		OnEntry(func(ctx context.Context, _ ...any) error {
			serviceReply := e.serviceReply(ctx, tc.category, domain.Metadata{"userMessage": message})
			tc.finalReply = tc.generalReply + "\n\n" + serviceReply
			return fsm.FireCtx(ctx, triggerServiceReplied)
		}).
		Permit(triggerServiceReplied, statePersisting)

	// Persisting: append the user message and the final reply, refresh the
	// conversation's update timestamp. Failures here are storage faults.
	fsm.Configure(statePersisting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := e.persistTurn(ctx, tc); err != nil {
				tc.lastError = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			return fsm.FireCtx(ctx, triggerPersisted)
		}).
		Permit(triggerPersisted, stateDone).
		Permit(triggerErrorOccurred, stateError)

	if err := fsm.FireCtx(ctx, triggerProcessTurn); err != nil {
		if tc.lastError != nil {
			return "", tc.lastError
		}
		return "", fmt.Errorf("turn state machine: %w", err)
	}

	current, err := fsm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("turn state machine: %w", err)
	}
	switch current {
	case stateDone:
		log.Info("turn processed", "category", tc.category)
		return tc.finalReply, nil
	case stateError:
		return "", tc.lastError
	default:
		return "", fmt.Errorf("turn state machine ended in unexpected state %v", current)
	}
}

func (e *Engine) persistTurn(ctx context.Context, tc *turnContext) error {
	userMsg := domain.NewMessage(tc.conversation.ID, tc.message, domain.RoleUser)
	if err := e.store.InsertMessage(ctx, userMsg); err != nil {
		return err
	}
	reply := domain.NewMessage(tc.conversation.ID, tc.finalReply, domain.RoleAssistant)
	if err := e.store.InsertMessage(ctx, reply); err != nil {
		return err
	}
	tc.conversation.UpdatedAt = time.Now().UTC()
	return e.store.UpdateConversation(ctx, tc.conversation)
}
