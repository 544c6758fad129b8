package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/config"
	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

// historyLimit caps how many prior turns are sent to the model.
const historyLimit = 20

// Service generates chat replies through an eino chain backed by an Ark model.
type Service struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

// NewService creates the Ark backed text generator. Missing credentials yield a
// disabled service.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		return &Service{logger: logger.Named("ai")}, nil
	}
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, chatModel, logger)
}

func newServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable, logger: logger.Named("ai")}, nil
}

// Enabled reports whether an Ark model is configured.
func (s *Service) Enabled() bool { return s.chain != nil }

// GenerateText runs the chain over history plus input.
func (s *Service) GenerateText(ctx context.Context, history []chat.Turn, input string) generation.Result[string] {
	if !s.Enabled() {
		return generation.NotConfigured[string]()
	}

	response, err := s.chain.Invoke(ctx, buildChainInput(history, input))
	if err != nil {
		return generation.FromError("", fmt.Errorf("failed to run AI chain: %w", err))
	}
	text := strings.TrimSpace(response.Content)
	if text == "" {
		return generation.Transient[string]("empty response from model")
	}

	s.logger.Debug("generated response", zap.Int("history", len(history)), zap.Int("length", len(text)))
	return generation.OK(text)
}

func buildChainInput(history []chat.Turn, input string) map[string]any {
	return map[string]any{
		"system":  buildSystemPrompt(history),
		"history": buildHistoryMessages(history),
		"query":   input,
	}
}

// buildSystemPrompt joins the system turns found in history.
func buildSystemPrompt(history []chat.Turn) string {
	var parts []string
	for _, turn := range history {
		if turn.Role == chat.RoleSystem && strings.TrimSpace(turn.Text) != "" {
			parts = append(parts, strings.TrimSpace(turn.Text))
		}
	}
	if len(parts) == 0 {
		return "You are a helpful companion."
	}
	return strings.Join(parts, "\n\n")
}

func buildHistoryMessages(history []chat.Turn) []*schema.Message {
	turns := make([]chat.Turn, 0, len(history))
	for _, turn := range history {
		if turn.Role != chat.RoleSystem {
			turns = append(turns, turn)
		}
	}
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	messages := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Text))
		case chat.RoleModel:
			messages = append(messages, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return messages
}
