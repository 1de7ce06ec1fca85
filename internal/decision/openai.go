package decision

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIConfig configures the chat completion backed decider. When
// AzureEndpoint is set the client talks to Azure OpenAI instead.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	Model           string
	Logger          *zap.Logger
}

// OpenAI decides by asking a chat completion model
type OpenAI struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAI builds the decider. Extra request options are appended last.
func NewOpenAI(cfg OpenAIConfig, extra ...option.RequestOption) (*OpenAI, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("openai decider: model is required")
	}
	var opts []option.RequestOption
	if endpoint := strings.TrimSpace(cfg.AzureEndpoint); endpoint != "" {
		opts = append(opts,
			azure.WithEndpoint(endpoint, cfg.AzureAPIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	} else {
		if cfg.APIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}
	opts = append(opts, extra...)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

// HandoffToolPrefix prefixes the function tool that passes control to a handle
const HandoffToolPrefix = "transfer_to_"

func (o *OpenAI) Decide(ctx context.Context, req Request) (Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: Messages(req),
	}
	if tools := HandoffTools(req.Handoffs); len(tools) > 0 {
		params.Tools = tools
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion for %s: %w", req.Actor, err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyReply
	}
	msg := resp.Choices[0].Message
	reply := Reply{
		Text:    strings.TrimSpace(msg.Content),
		Handoff: handoffFromCalls(msg.ToolCalls, req.Handoffs),
	}
	if reply.Text == "" && reply.Handoff == "" {
		return Reply{}, ErrEmptyReply
	}
	o.logger.Debug("decided",
		zap.String("actor", req.Actor),
		zap.String("handoff", reply.Handoff),
		zap.Int("transcript", len(req.Transcript)),
		zap.Int64("tokens", resp.Usage.TotalTokens),
	)
	return reply, nil
}

// HandoffTools declares one argument-less function per allowed handoff target
func HandoffTools(handoffs []string) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(handoffs))
	for _, h := range handoffs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        HandoffToolPrefix + h,
				Description: openai.String("Give the turn to " + h + "."),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		})
	}
	return tools
}

// handoffFromCalls returns the first tool call naming an allowed target
func handoffFromCalls(calls []openai.ChatCompletionMessageToolCall, allowed []string) string {
	for _, c := range calls {
		target, ok := strings.CutPrefix(c.Function.Name, HandoffToolPrefix)
		if ok && slices.Contains(allowed, target) {
			return target
		}
	}
	return ""
}

// Messages lays a request out as a chat: the actor's own entries become
// assistant turns and everyone else's are attributed user turns.
func Messages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Transcript)+2)
	msgs = append(msgs, openai.SystemMessage(req.Instructions))
	for _, m := range req.Transcript {
		if m.Source == req.Actor {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
			continue
		}
		msgs = append(msgs, openai.UserMessage(fmt.Sprintf("[%s]: %s", m.Source, m.Content)))
	}
	if len(req.Transcript) == 0 || req.Transcript[len(req.Transcript)-1].Source == req.Actor {
		msgs = append(msgs, openai.UserMessage("[system]: It is your turn."))
	}
	return msgs
}
