package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
)

const classifierSystemPrompt = `
You are a classifier for a ticket-buying assistant.
You will receive the URL, title and visible text of a ticketing web page.

Decide ONE thing: can tickets be purchased on this page RIGHT NOW?
"Yes" means there is a live purchase path: a buy/book button, a quantity
selector, a checkout form. Queue pages, waiting rooms, "sold out" notices,
and informational pages are all "no".

You must strictly respond with a SINGLE JSON object:
{
  "available": true | false,
  "reason": "one short sentence"
}
`

// OpenAI classifies availability with a small model call. Slower and costs
// money per poll; use it only when keyword markers keep misfiring.
type OpenAI struct {
	client *openai.Client
}

func NewOpenAI() (*OpenAI, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	return &OpenAI{client: openai.NewClient(apiKey)}, nil
}

func (o *OpenAI) Detect(ctx context.Context, page *browser.PageState) (bool, error) {
	text := page.Text
	if len(text) > 12000 {
		text = text[:12000] + "\n... (truncated)"
	}

	userMessage := fmt.Sprintf("URL: %s\nTITLE: %s\n\nPAGE TEXT:\n%s", page.URL, page.Title, text)

	req := openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return false, fmt.Errorf("OpenAI error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("no response choices")
	}

	content := resp.Choices[0].Message.Content

	var out struct {
		Available bool   `json:"available"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return false, fmt.Errorf("json parse error: %w | content: %s", err, content)
	}
	return out.Available, nil
}
