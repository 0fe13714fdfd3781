package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/careai/careai-go/internal/domain"
	"github.com/careai/careai-go/internal/logger"
)

const classifyInstruction = "You are an AI that helps identify social services based on user needs. " +
	"Analyze the following message and recommend up to 3 relevant social service categories. " +
	"Return only the service names as a comma-separated list. " +
	"Example: 'food assistance, housing support, utility bill help'"

// Classify labels the raw user message with a primary social-service
// category via a single-turn completion call, no conversation history.
// Classification is best effort: a disabled provider, a failed call, or an
// unparseable response all yield GeneralInquiry so the primary reply is
// never blocked.
func (e *Engine) Classify(ctx context.Context, userMessage string) string {
	if !e.completer.Enabled() {
		return GeneralInquiry
	}

	resp, err := e.completer.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: classifyInstruction},
		{Role: openai.ChatMessageRoleUser, Content: userMessage},
	}, classifySampling)
	if err != nil {
		logger.L.Warn("intent classification failed; treating as general inquiry", "error", err)
		return GeneralInquiry
	}

	for _, part := range strings.Split(resp, ",") {
		if category := strings.TrimSpace(part); category != "" {
			return category
		}
	}
	return GeneralInquiry
}

// serviceReply issues the service-specific completion for a classified
// category, summarizing the requested service and the supplied parameters
// in the user turn. Failures degrade to a static apology.
func (e *Engine) serviceReply(ctx context.Context, serviceType string, params domain.Metadata) string {
	system := fmt.Sprintf("You are an AI that helps with social services. The user has requested help with: %s. "+
		"Please provide a helpful and empathetic response based on the user's needs.", serviceType)

	reply, err := e.completer.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("I need help with: %s. Additional details: %s", serviceType, formatParams(params))},
	}, serviceSampling)
	if err != nil {
		logger.L.Error("service completion failed", "service_type", serviceType, "error", err)
		return serviceErrorMessage
	}
	return reply
}

func formatParams(params domain.Metadata) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}
