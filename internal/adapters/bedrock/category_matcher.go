package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/utils"
)

// BedrockMatcher is an implementation of the CategoryMatcher interface using Amazon Bedrock
type BedrockMatcher struct {
	client        *bedrockruntime.Client
	categories    core.CategoryRepository
	modelID       string
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

// NewBedrockMatcher creates a new Bedrock category matcher
func NewBedrockMatcher(
	client *bedrockruntime.Client,
	categories core.CategoryRepository,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockMatcher {
	return &BedrockMatcher{
		client:        client,
		categories:    categories,
		modelID:       modelID,
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
func (m *BedrockMatcher) MatchCategories(ctx context.Context, content *core.NewsletterContent) ([]*core.CategoryAssignment, error) {
	catalog, err := m.formatCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog == "" {
		return nil, nil
	}

	body := m.textProcessor.ProcessText(content.Body, m.maxBodySize)
	prompt := fmt.Sprintf(m.promptFormat, catalog, content.Sender, content.Subject, body)

	// Build the request payload for the model family
	var payload []byte
	if m.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": m.maxTokens,
			"temperature":          m.temperature,
			"top_p":                m.topP,
		})
	} else if m.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": m.maxTokens,
				"temperature":   m.temperature,
				"topP":          m.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  m.maxTokens,
			"temperature": m.temperature,
			"top_p":       m.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &m.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := m.extractResponseText(resp.Body)
	if err != nil {
		return nil, err
	}

	matches, err := parseMatches(responseText)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Bedrock category matches",
		zap.String("newsletter_id", content.NewsletterID),
		zap.Int("match_count", len(matches)),
		zap.String("model", m.modelID))

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

// extractResponseText pulls the completion text out of the model-family
// specific response envelope
func (m *BedrockMatcher) extractResponseText(body []byte) (string, error) {
	if m.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}

	if m.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	// Try a generic approach
	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}
	if genericResp.Output != "" {
		return genericResp.Output, nil
	}
	if genericResp.Text != "" {
		return genericResp.Text, nil
	}
	if genericResp.Response != "" {
		return genericResp.Response, nil
	}
	return string(body), nil
}

func (m *BedrockMatcher) formatCatalog(ctx context.Context) (string, error) {
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

// isAnthropicModel checks if the model is an Anthropic Claude model
func (m *BedrockMatcher) isAnthropicModel() bool {
	return strings.HasPrefix(m.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (m *BedrockMatcher) isAmazonTitanModel() bool {
	return strings.HasPrefix(m.modelID, "amazon.titan")
}
