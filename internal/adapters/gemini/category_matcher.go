package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/utils"
)

// GeminiMatcher is an implementation of the CategoryMatcher interface using Google Gemini
type GeminiMatcher struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	categories    core.CategoryRepository
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// categoryMatch is one entry of the structured response from the LLM
type categoryMatch struct {
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
}

// NewGeminiMatcher creates a new Gemini category matcher
func NewGeminiMatcher(
	apiKey string,
	categories core.CategoryRepository,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiMatcher, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiMatcher{
		client:        client,
		model:         model,
		categories:    categories,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat: `You are a newsletter categorization system. Assign the following newsletter to the most relevant categories from the list below.
Respond with a JSON array where each element contains:
- category_id: string (the id of a category from the list)
- confidence: number between 0 and 1 (how well the newsletter fits the category)

Only include categories that are actually relevant. Use only category ids from the list.

Categories:
%s

Newsletter:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON array and nothing else.`,
	}, nil
}

// Close closes the Gemini client
func (m *GeminiMatcher) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// MatchCategories asks the LLM to place the newsletter in the category tree
func (m *GeminiMatcher) MatchCategories(ctx context.Context, content *core.NewsletterContent) ([]*core.CategoryAssignment, error) {
	catalog, err := m.formatCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog == "" {
		return nil, nil
	}

	body := m.textProcessor.ProcessText(content.Body, m.maxBodySize)
	prompt := fmt.Sprintf(m.promptFormat, catalog, content.Sender, content.Subject, body)

	resp, err := m.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	responseText, err := candidateText(resp)
	if err != nil {
		return nil, err
	}

	matches, err := parseMatches(responseText)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Gemini category matches",
		zap.String("newsletter_id", content.NewsletterID),
		zap.Int("match_count", len(matches)),
		zap.String("model", m.modelName))

	assignments := make([]*core.CategoryAssignment, 0, len(matches))
	for _, match := range matches {
		if match.CategoryID == "" {
			continue
		}
		assignments = append(assignments, &core.CategoryAssignment{
			NewsletterID: content.NewsletterID,
			CategoryID:   match.CategoryID,
			Confidence:   core.Clamp01(match.Confidence),
		})
	}
	return assignments, nil
}

func (m *GeminiMatcher) formatCatalog(ctx context.Context) (string, error) {
	categories, err := m.categories.ListCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list categories: %w", err)
	}

	var b strings.Builder
	for _, category := range categories {
		fmt.Fprintf(&b, "- %s: %s", category.ID, category.Name)
		if category.Description != "" {
			fmt.Fprintf(&b, " (%s)", category.Description)
		}
		if category.ParentID != "" {
			fmt.Fprintf(&b, " [child of %s]", category.ParentID)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// candidateText extracts the first candidate's text. Blocked generations
// (safety finish reasons) leave Content nil on an otherwise valid response.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", fmt.Errorf("response from Gemini carried no content")
	}
	return fmt.Sprintf("%v", content.Parts[0]), nil
}

// parseMatches decodes the LLM's JSON array, tolerating surrounding prose
func parseMatches(responseText string) ([]categoryMatch, error) {
	var matches []categoryMatch
	if err := json.Unmarshal([]byte(responseText), &matches); err != nil {
		// Try to extract the JSON array from the text response
		jsonStart := -1
		jsonEnd := -1
		for i := 0; i < len(responseText); i++ {
			if responseText[i] == '[' {
				jsonStart = i
				break
			}
		}
		for i := len(responseText) - 1; i >= 0; i-- {
			if responseText[i] == ']' {
				jsonEnd = i + 1
				break
			}
		}

		if jsonStart < 0 || jsonStart >= jsonEnd {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &matches); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}
	return matches, nil
}
