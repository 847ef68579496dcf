package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"warmtransfer/internal/config"
)

const (
	summarySystemPrompt = "You are a professional call center analyst specializing in creating clear, actionable call summaries for agent handoffs."
	handoffSystemPrompt = "You are helping create professional agent-to-agent transfer communications."

	handoffMaxTokens = 150
)

// OpenAIGenerator generates summaries and handoff messages through the OpenAI
// chat completions API.
type OpenAIGenerator struct {
	client openai.Client

	model            string
	summaryMaxTokens int
	temperature      float64
}

func NewOpenAIGenerator(cfg config.LLMConfig) (*OpenAIGenerator, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("summary: openai api key required")
	}
	return &OpenAIGenerator{
		client:           openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		model:            cfg.Model,
		summaryMaxTokens: cfg.SummaryMaxTokens,
		temperature:      cfg.SummaryTemperature,
	}, nil
}

func (g *OpenAIGenerator) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	return g.complete(ctx, summarySystemPrompt, summaryPrompt(req), g.summaryMaxTokens)
}

func (g *OpenAIGenerator) HandoffMessage(ctx context.Context, req HandoffRequest) (string, error) {
	return g.complete(ctx, handoffSystemPrompt, handoffPrompt(req), handoffMaxTokens)
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("summary: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary: chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func summaryPrompt(req SummaryRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert call center analyst. Please analyze the following customer service call transcript and provide a comprehensive summary that would be useful for a warm transfer to another agent.\n\n")

	if req.CallerName != "" || req.CallerPhone != "" || req.CallReason != "" {
		b.WriteString("Caller Information:\n")
		b.WriteString("- Name: " + orDefault(req.CallerName, "Unknown") + "\n")
		b.WriteString("- Phone: " + orDefault(req.CallerPhone, "Not provided") + "\n")
		b.WriteString("- Reason for call: " + orDefault(req.CallReason, "Not specified") + "\n\n")
	}
	if req.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Call duration: %d minutes %d seconds\n\n", req.DurationSeconds/60, req.DurationSeconds%60)
	}

	b.WriteString("CALL TRANSCRIPT:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n\nPlease provide a structured summary in the following format:\n\n")
	b.WriteString(`**CALL SUMMARY**
- Customer Name: [Extract or use provided]
- Issue Category: [Categorize the main issue]
- Key Points: [3-5 bullet points of main discussion points]
- Customer Sentiment: [Professional assessment]
- Actions Taken: [What has been done so far]
- Outstanding Items: [What still needs to be resolved]
- Recommended Next Steps: [Suggestions for the receiving agent]
- Priority Level: [Low/Medium/High based on urgency]

Keep the summary concise but comprehensive, focusing on information that would help the next agent continue the conversation seamlessly.`)
	return b.String()
}

func handoffPrompt(req HandoffRequest) string {
	var b strings.Builder
	b.WriteString("You are helping with a warm call transfer. Please create a brief, professional transfer message that Agent A should communicate to Agent B.\n\n")
	b.WriteString("Call Summary:\n")
	b.WriteString(req.Summary)
	b.WriteString("\n\nTransfer Reason: " + req.Reason + "\n")
	if len(req.Skills) > 0 {
		b.WriteString("Receiving agent skills: " + strings.Join(req.Skills, ", ") + "\n")
	}
	b.WriteString(`
Create a concise transfer message (2-3 sentences) that Agent A can speak to Agent B, covering:
1. Brief customer situation
2. What's been done
3. What needs to happen next

Make it conversational and professional, as if one agent is speaking directly to another.`)
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
