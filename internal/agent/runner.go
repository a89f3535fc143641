package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"personachat/internal/config"
	"personachat/internal/models"
)

// Runner starts one turn against the remote agent and exposes its output as
// a TokenSource. The two concrete shapes (native incremental stream, single
// final string) both arrive through this interface so the driver never cares
// which one the upstream happens to be.
type Runner interface {
	StartTurn(ctx context.Context, history []models.HistoryItem) (TokenSource, error)
}

// RunnerConfig carries provider selection, the tool set, and pacing policy.
type RunnerConfig struct {
	Provider       string
	ProviderConfig config.ProviderConfig
	Instructions   string
	Tools          []tool.BaseTool

	// Streaming selects the native incremental stream; when false the
	// runner generates the full reply and synthesizes a stream from it.
	Streaming bool

	StreamDelay   time.Duration
	ChunkDelay    time.Duration
	WordsPerChunk int
}

type einoRunner struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	cfg       RunnerConfig
}

// NewEinoRunner builds the chat model for the configured provider and wraps
// it in a react agent when tools are available.
func NewEinoRunner(ctx context.Context, cfg RunnerConfig) (Runner, error) {
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	provCfg := cfg.ProviderConfig

	switch cfg.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{APIKey: provCfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}

	var reactAgent *react.Agent
	if len(cfg.Tools) > 0 {
		reactAgent, err = react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: cfg.Tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
	}

	return &einoRunner{chatModel: chatModel, agent: reactAgent, cfg: cfg}, nil
}

func (r *einoRunner) StartTurn(ctx context.Context, history []models.HistoryItem) (TokenSource, error) {
	messages := r.buildMessages(history)

	if r.cfg.Streaming {
		var (
			reader *schema.StreamReader[*schema.Message]
			err    error
		)
		if r.agent != nil {
			reader, err = r.agent.Stream(ctx, messages)
		} else {
			reader, err = r.chatModel.Stream(ctx, messages)
		}
		if err != nil {
			return nil, fmt.Errorf("start agent stream: %w", err)
		}
		return newStreamSource(reader, r.cfg.StreamDelay), nil
	}

	var (
		reply *schema.Message
		err   error
	)
	if r.agent != nil {
		reply, err = r.agent.Generate(ctx, messages)
	} else {
		reply, err = r.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("generate agent reply: %w", err)
	}
	items := []models.HistoryItem{NewAssistantItem(reply.Content)}
	return newCompletionSource(reply.Content, r.cfg.WordsPerChunk, r.cfg.ChunkDelay, items), nil
}

func (r *einoRunner) buildMessages(history []models.HistoryItem) []*schema.Message {
	messages := toSchemaMessages(history)
	if r.cfg.Instructions == "" {
		return messages
	}
	for _, m := range messages {
		if m.Role == schema.System {
			return messages
		}
	}
	system := &schema.Message{Role: schema.System, Content: r.cfg.Instructions}
	return append([]*schema.Message{system}, messages...)
}
