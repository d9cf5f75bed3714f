package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/queryforge/queryforge/internal/errors"
	"github.com/queryforge/queryforge/internal/types"
)

// Client implements Generator over the configured provider's HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient validates the configuration and builds a client. The returned
// client is safe for concurrent use.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// generationResponse is the JSON shape the prompt asks the model for.
type generationResponse struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
	Tables      []string `json:"tables"`
}

// Generate makes one provider call and parses the structured response.
func (c *Client) Generate(ctx context.Context, req Request) (*types.SQLCandidate, error) {
	prompt := c.buildPrompt(req)

	var (
		content string
		err     error
	)

	switch c.config.Provider {
	case ProviderOpenAI:
		content, err = c.generateOpenAI(ctx, prompt)
	case ProviderAnthropic:
		content, err = c.generateAnthropic(ctx, prompt)
	case ProviderOllama, ProviderLocal:
		content, err = c.generateOllama(ctx, prompt)
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", c.config.Provider)
	}

	if err != nil {
		return nil, errors.NewProviderError(c.config.Provider, err)
	}

	return parseCandidate(content, c.config.Provider)
}

func parseCandidate(content, provider string) (*types.SQLCandidate, error) {
	var parsed generationResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, errors.NewProviderError(provider,
			fmt.Errorf("failed to parse generation response: %w", err))
	}

	if strings.TrimSpace(parsed.SQL) == "" {
		return nil, errors.NewProviderError(provider,
			fmt.Errorf("generation response contained no SQL"))
	}

	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}

	return &types.SQLCandidate{
		Statement:        parsed.SQL,
		Explanation:      parsed.Explanation,
		Confidence:       confidence,
		TablesReferenced: parsed.Tables,
	}, nil
}

// extractJSON tolerates models that wrap the JSON object in prose or fences.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start >= 0 && end > start {
		return content[start : end+1]
	}

	return content
}

func (c *Client) buildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString(`You are an expert at writing DuckDB SQL. Convert the question into a single read-only SELECT statement against the given schema.

Rules:
- Use only the tables and columns listed in the schema.
- Never write data: no INSERT, UPDATE, DELETE, DDL, or PRAGMA.
- Prefer explicit JOIN ... ON over comma joins.
- Respond with a JSON object with fields:
  - sql: the SELECT statement
  - explanation: one sentence on what the query does
  - confidence: your confidence from 0.0 to 1.0
  - tables: the table names the query reads

`)

	sb.WriteString("Schema:\n")
	sb.WriteString(req.SchemaContext)
	sb.WriteString("\n")

	if req.Category != "" {
		fmt.Fprintf(&sb, "Query shape: %s\n\n", req.Category)
	}

	if req.Feedback != "" {
		sb.WriteString(req.Feedback)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n", req.Question)

	return sb.String()
}

// OpenAI API structures.
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) generateOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		MaxTokens:      1000,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	respBody, err := c.post(ctx, c.config.BaseURL+"/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures.
type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *apiError          `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Client) generateAnthropic(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model: c.config.Model,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 1000,
	}

	respBody, err := c.post(ctx, c.config.BaseURL+"/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse Anthropic response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("Anthropic API error: %s", response.Error.Message)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("no response from Anthropic")
	}

	return response.Content[0].Text, nil
}

// Ollama API structures.
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) generateOllama(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	}

	respBody, err := c.post(ctx, c.config.BaseURL+"/api/generate", reqBody, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse Ollama response: %w", err)
	}

	if response.Error != "" {
		return "", fmt.Errorf("Ollama API error: %s", response.Error)
	}

	return response.Response, nil
}

func (c *Client) post(ctx context.Context, url string, reqBody any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
