package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/utils"
)

// OpenAIMatcher is an implementation of the CategoryMatcher interface using OpenAI
type OpenAIMatcher struct {
	client        *openai.Client
	categories    core.CategoryRepository
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
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

// NewOpenAIMatcher creates a new OpenAI category matcher
func NewOpenAIMatcher(
	client *openai.Client,
	categories core.CategoryRepository,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIMatcher {
	return &OpenAIMatcher{
		client:        client,
		categories:    categories,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
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
	}
}

// MatchCategories asks the LLM to place the newsletter in the category tree
func (m *OpenAIMatcher) MatchCategories(ctx context.Context, content *core.NewsletterContent) ([]*core.CategoryAssignment, error) {
	catalog, err := formatCatalog(ctx, m.categories)
	if err != nil {
		return nil, err
	}
	if catalog == "" {
		return nil, nil
	}

	body := m.textProcessor.ProcessText(content.Body, m.maxBodySize)
	prompt := fmt.Sprintf(m.promptFormat, catalog, content.Sender, content.Subject, body)

	req := openai.ChatCompletionRequest{
		Model: m.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a newsletter categorization system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
		TopP:        m.topP,
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	matches, err := parseMatches(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("OpenAI category matches",
		zap.String("newsletter_id", content.NewsletterID),
		zap.Int("match_count", len(matches)),
		zap.String("model", m.modelName))

	return toAssignments(content.NewsletterID, matches), nil
}

// formatCatalog renders the category tree as a prompt fragment
func formatCatalog(ctx context.Context, repo core.CategoryRepository) (string, error) {
	categories, err := repo.ListCategories(ctx)
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

func toAssignments(newsletterID string, matches []categoryMatch) []*core.CategoryAssignment {
	assignments := make([]*core.CategoryAssignment, 0, len(matches))
	for _, match := range matches {
		if match.CategoryID == "" {
			continue
		}
		assignments = append(assignments, &core.CategoryAssignment{
			NewsletterID: newsletterID,
			CategoryID:   match.CategoryID,
			Confidence:   core.Clamp01(match.Confidence),
		})
	}
	return assignments
}
