package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	openai "github.com/sashabaranov/go-openai"
)

// Verdict is the parsed model decision for a single email.
type Verdict struct {
	IsVacationResponse bool    `json:"is_vacation_response"`
	Confidence         float64 `json:"confidence"`
	Reasoning          string  `json:"reasoning"`

	InputTokens  int `json:"-"`
	OutputTokens int `json:"-"`
}

// EmailData is the metadata and trimmed body sent for analysis.
type EmailData struct {
	From    string
	Date    string
	Subject string
	Body    string
}

// Client analyzes a single email and returns the model verdict.
type Client interface {
	Analyze(ctx context.Context, systemPrompt, userPrompt string, email EmailData) (Verdict, error)
}

// Credentials holds the chat-completion endpoint configuration,
// resolved from the environment.
type Credentials struct {
	APIKey      string
	BaseURL     string
	Model       string
	PriceInput  float64
	PriceOutput float64
}

// CredentialsFromEnv reads OPENAI_* variables. Prices are USD per one
// million tokens.
func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		BaseURL:     os.Getenv("OPENAI_BASE_URL"),
		Model:       os.Getenv("OPENAI_MODEL"),
		PriceInput:  0.15,
		PriceOutput: 0.60,
	}

	if creds.APIKey == "" {
		return Credentials{}, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if creds.Model == "" {
		creds.Model = openai.GPT4oMini
	}

	if v := os.Getenv("OPENAI_PRICE_INPUT"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Credentials{}, fmt.Errorf("invalid OPENAI_PRICE_INPUT: %w", err)
		}
		creds.PriceInput = price
	}
	if v := os.Getenv("OPENAI_PRICE_OUTPUT"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Credentials{}, fmt.Errorf("invalid OPENAI_PRICE_OUTPUT: %w", err)
		}
		creds.PriceOutput = price
	}

	return creds, nil
}

// OpenAIClient talks to an OpenAI-compatible chat-completion endpoint.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

func NewOpenAIClient(creds Credentials) *OpenAIClient {
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}

	return &OpenAIClient{
		api:   openai.NewClientWithConfig(cfg),
		model: creds.Model,
	}
}

const userMessageTemplate = `%s

EMAIL TO ANALYZE:
From: %s
Date: %s
Subject: %s

%s

Respond with JSON only:
{"is_vacation_response": true/false, "confidence": 0.95, "reasoning": "brief explanation"}`

func (c *OpenAIClient) Analyze(ctx context.Context, systemPrompt, userPrompt string, email EmailData) (Verdict, error) {
	userMessage := fmt.Sprintf(userMessageTemplate, userPrompt, email.From, email.Date, email.Subject, email.Body)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
		MaxTokens:   500,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Verdict{}, fmt.Errorf("chat completion returned no choices")
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("parse model response: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return Verdict{}, fmt.Errorf("model confidence out of range: %v", verdict.Confidence)
	}

	verdict.InputTokens = resp.Usage.PromptTokens
	verdict.OutputTokens = resp.Usage.CompletionTokens
	return verdict, nil
}
