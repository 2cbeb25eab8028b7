package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/portfolio-ai/backend/internal/model/chat"
)

// ArkStrategy runs a compiled eino chain (prompt template then chat model).
// The system context, when set, leads the history placeholder.
// It is used with the Volcengine Ark model but accepts any eino chat model.
type ArkStrategy struct {
	chatModel model.BaseChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewArkStrategy compiles the prompt chain around chatModel.
func NewArkStrategy(ctx context.Context, chatModel model.BaseChatModel) (*ArkStrategy, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("ark: chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
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

	return &ArkStrategy{chatModel: chatModel, chain: runnable}, nil
}

// Name implements Strategy.
func (s *ArkStrategy) Name() string { return "ark" }

// Generate implements Strategy.
func (s *ArkStrategy) Generate(ctx context.Context, req Request) (string, error) {
	history := historyMessages(req.History)
	if req.SystemContext != "" {
		history = append([]*schema.Message{schema.SystemMessage(req.SystemContext)}, history...)
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"history": history,
		"query":   req.Message,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(response.Content), nil
}

func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(turn.Content))
		}
	}
	return history
}
