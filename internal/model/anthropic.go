// Package model adapts non-Gemini LLM vendors to the ADK model interface.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"
)

// AnthropicModel implements adkmodel.LLM for Anthropic Claude, so the license
// agent can run on either model vendor without the tool layer noticing.
type AnthropicModel struct {
	client    anthropic.Client
	modelName string
}

// NewAnthropicModel creates a new Anthropic model client.
func NewAnthropicModel(ctx context.Context, modelName, apiKey string) (*AnthropicModel, error) {
	return &AnthropicModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}, nil
}

// Name returns the model name.
func (m *AnthropicModel) Name() string {
	return m.modelName
}

// GenerateContent implements the adkmodel.LLM interface. Responses are
// produced non-streaming; tool calls arrive as complete blocks either way.
func (m *AnthropicModel) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		params, err := m.convertRequest(req)
		if err != nil {
			yield(nil, fmt.Errorf("failed to convert request: %w", err))
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			slog.Error("anthropic API error", "err", err)
			yield(nil, fmt.Errorf("anthropic API error: %w", err))
			return
		}
		yield(m.convertResponse(resp), nil)
	}
}

// convertRequest maps an ADK LLMRequest to Anthropic message params.
func (m *AnthropicModel) convertRequest(req *adkmodel.LLMRequest) (anthropic.MessageNewParams, error) {
	var messages []anthropic.MessageParam
	var systemPrompts []anthropic.TextBlockParam

	if req.Config != nil && req.Config.SystemInstruction != nil {
		for _, part := range req.Config.SystemInstruction.Parts {
			if part.Text != "" {
				systemPrompts = append(systemPrompts, anthropic.TextBlockParam{Text: part.Text})
			}
		}
	}

	for _, content := range req.Contents {
		if content.Role == "system" {
			for _, part := range content.Parts {
				if part.Text != "" {
					systemPrompts = append(systemPrompts, anthropic.TextBlockParam{Text: part.Text})
				}
			}
			continue
		}
		msg, err := convertContent(content)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		Messages:  messages,
		MaxTokens: 4096,
	}
	if len(systemPrompts) > 0 {
		params.System = systemPrompts
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	if req.Config != nil {
		if req.Config.Temperature != nil {
			params.Temperature = anthropic.Float(float64(*req.Config.Temperature))
		}
		if req.Config.MaxOutputTokens != 0 {
			params.MaxTokens = int64(req.Config.MaxOutputTokens)
		}
		if req.Config.TopP != nil {
			params.TopP = anthropic.Float(float64(*req.Config.TopP))
		}
	}

	return params, nil
}

// convertContent maps a genai.Content to an Anthropic MessageParam.
func convertContent(content *genai.Content) (anthropic.MessageParam, error) {
	var blocks []anthropic.ContentBlockParamUnion

	for _, part := range content.Parts {
		switch {
		case part.Text != "":
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))

		case part.FunctionCall != nil:
			blocks = append(blocks, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				part.FunctionCall.Args,
				part.FunctionCall.Name,
			))

		case part.FunctionResponse != nil:
			resultJSON, err := json.Marshal(part.FunctionResponse.Response)
			if err != nil {
				return anthropic.MessageParam{}, err
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(
				part.FunctionResponse.ID,
				string(resultJSON),
				false,
			))

		case part.InlineData != nil:
			blocks = append(blocks, anthropic.NewImageBlockBase64(
				part.InlineData.MIMEType,
				string(part.InlineData.Data),
			))
		}
	}

	if content.Role == "model" || content.Role == "assistant" {
		return anthropic.NewAssistantMessage(blocks...), nil
	}
	return anthropic.NewUserMessage(blocks...), nil
}

// declarationProvider matches ADK tools that expose a Declaration.
type declarationProvider interface {
	Declaration() *genai.FunctionDeclaration
}

// describer matches the tool.Tool interface surface we need.
type describer interface {
	Name() string
	Description() string
}

// convertTools maps ADK tool definitions to Anthropic tool params.
func convertTools(tools map[string]any) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for name, toolDef := range tools {
		var description string
		var parameters *genai.Schema

		switch def := toolDef.(type) {
		case *genai.FunctionDeclaration:
			description = def.Description
			parameters = def.Parameters
		case genai.FunctionDeclaration:
			description = def.Description
			parameters = def.Parameters
		default:
			if t, ok := toolDef.(describer); ok {
				description = t.Description()
			}
			if dp, ok := toolDef.(declarationProvider); ok {
				if decl := dp.Declaration(); decl != nil {
					if description == "" {
						description = decl.Description
					}
					parameters = decl.Parameters
				}
			}
			if description == "" {
				slog.Warn("tool has no usable declaration, skipping", "tool", name, "type", fmt.Sprintf("%T", toolDef))
				continue
			}
		}

		inputSchema := anthropic.ToolInputSchemaParam{Type: "object"}
		if parameters != nil {
			schemaBytes, err := json.Marshal(parameters)
			if err != nil {
				return nil, err
			}
			var schemaMap map[string]interface{}
			if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
				return nil, err
			}
			if props, ok := schemaMap["properties"]; ok {
				inputSchema.Properties = props
			}
			if required, ok := schemaMap["required"].([]interface{}); ok {
				var reqStrings []string
				for _, r := range required {
					if s, ok := r.(string); ok {
						reqStrings = append(reqStrings, s)
					}
				}
				inputSchema.Required = reqStrings
			}
		}

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        name,
				Description: anthropic.String(description),
				InputSchema: inputSchema,
			},
		})
	}

	return result, nil
}

// convertResponse maps an Anthropic response to an ADK LLMResponse.
func (m *AnthropicModel) convertResponse(resp *anthropic.Message) *adkmodel.LLMResponse {
	var parts []*genai.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, &genai.Part{Text: block.Text})

		case "tool_use":
			argsMap := make(map[string]any)
			if block.Input != nil {
				json.Unmarshal(block.Input, &argsMap)
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   block.ID,
					Name: block.Name,
					Args: argsMap,
				},
			})
		}
	}

	var finishReason genai.FinishReason
	var turnComplete bool
	switch resp.StopReason {
	case "end_turn":
		finishReason = genai.FinishReasonStop
		turnComplete = true
	case "tool_use":
		// The turn is not complete until the tool result comes back.
		finishReason = genai.FinishReasonStop
		turnComplete = false
	case "max_tokens":
		finishReason = genai.FinishReasonMaxTokens
		turnComplete = true
	}

	return &adkmodel.LLMResponse{
		Content: &genai.Content{
			Role:  "model",
			Parts: parts,
		},
		FinishReason: finishReason,
		TurnComplete: turnComplete,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(resp.Usage.InputTokens),
			CandidatesTokenCount: int32(resp.Usage.OutputTokens),
			TotalTokenCount:      int32(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}
