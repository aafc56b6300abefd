package segment

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// System prompts for the staged boundary protocol. Replies must be bare
// index lists; parseIndexList tolerates stray prose anyway.
const (
	boundarySystemPrompt = "You are an expert reader of classical Arabic and Persian religious texts. " +
		"You identify phrase, sentence, and paragraph boundaries in unpunctuated prose. " +
		"Reply with comma-separated numbers only, no explanation."

	phrasePromptFormat = "Every word below carries a subscript number. " +
		"List the numbers of the words that END a phrase, in reading order, comma-separated.\n\n%s"

	sentencePromptFormat = "The numbered phrases below form one continuous passage. " +
		"List the numbers of the phrases that END a sentence, comma-separated.\n\n%s"

	paragraphPromptFormat = "The numbered sentences below form one continuous passage. " +
		"List the numbers of the sentences that BEGIN a new paragraph, comma-separated. " +
		"The first paragraph always begins at sentence 1.\n\n%s"
)

// GeminiBoundary implements BoundaryModel against the Gemini API.
type GeminiBoundary struct {
	client  *genai.Client
	model   string
	retry   errors.RetryConfig
	breaker *errors.CircuitBreaker
}

var _ BoundaryModel = (*GeminiBoundary)(nil)

// NewGeminiBoundary creates a Gemini-backed boundary model.
func NewGeminiBoundary(ctx context.Context, apiKey, model string) (*GeminiBoundary, error) {
	if apiKey == "" {
		return nil, errors.InputInvalid("segmentation API key is empty", nil).
			WithSuggestion("set the key named by segmentation api_key_env, or disable segmentation")
	}
	if model == "" {
		return nil, errors.InputInvalid("segmentation model name is empty", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.ProviderPermanent("failed to initialize segmentation client", err)
	}

	return &GeminiBoundary{
		client:  client,
		model:   model,
		retry:   errors.DefaultRetryConfig(),
		breaker: errors.NewCircuitBreaker("segmenter"),
	}, nil
}

func (g *GeminiBoundary) PhraseBoundaries(ctx context.Context, words []string) ([]int, error) {
	reply, err := g.generate(ctx, fmt.Sprintf(phrasePromptFormat, numberWords(words)))
	if err != nil {
		return nil, err
	}
	return parseIndexList(reply, len(words)), nil
}

func (g *GeminiBoundary) SentenceBoundaries(ctx context.Context, phrases []string) ([]int, error) {
	reply, err := g.generate(ctx, fmt.Sprintf(sentencePromptFormat, numberLines(phrases)))
	if err != nil {
		return nil, err
	}
	return parseIndexList(reply, len(phrases)), nil
}

func (g *GeminiBoundary) ParagraphStarts(ctx context.Context, sentences []string) ([]int, error) {
	reply, err := g.generate(ctx, fmt.Sprintf(paragraphPromptFormat, numberLines(sentences)))
	if err != nil {
		return nil, err
	}
	return parseIndexList(reply, len(sentences)), nil
}

// generate runs one prompt through the model with retry and the circuit
// breaker. Temperature is pinned to zero: boundary decisions must be
// reproducible.
func (g *GeminiBoundary) generate(ctx context.Context, prompt string) (string, error) {
	return errors.RetryWithResult(ctx, g.retry, func() (string, error) {
		return errors.CircuitExecuteWithResult(g.breaker, func() (string, error) {
			config := &genai.GenerateContentConfig{
				Temperature:       genai.Ptr(float32(0)),
				SystemInstruction: genai.NewContentFromText(boundarySystemPrompt, genai.RoleUser),
			}
			contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

			resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
			if err != nil {
				return "", errors.ClassifyProviderError("segmentation request failed", err)
			}
			text := responseText(resp)
			if text == "" {
				return "", errors.ProviderPermanent("segmentation model returned no text", nil)
			}
			return text, nil
		}, nil)
	})
}

// responseText concatenates the text parts of the first candidate that
// has any.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b []byte
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				b = append(b, part.Text...)
			}
		}
		if len(b) > 0 {
			break
		}
	}
	return string(b)
}
