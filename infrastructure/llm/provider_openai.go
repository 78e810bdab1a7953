package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is the model the diagnosis answer is generated with.
const OpenAIDefaultModel = "gpt-4-turbo"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

type openAIProvider struct {
	baseProvider
	client     *openai.Client
	classifier ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	clientConfig, err := openAIClientConfig(config)
	if err != nil {
		return nil, err
	}
	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}
	return &openAIProvider{
		baseProvider: baseProvider{model: model},
		client:       openai.NewClientWithConfig(clientConfig),
		classifier:   ErrorClassifier{Provider: "openai"},
	}, nil
}

// openAIClientConfig is shared with the embedder.
func openAIClientConfig(config ClientConfig) (openai.ClientConfig, error) {
	if config.APIKey == "" {
		return openai.ClientConfig{}, ErrEmptyAPIKey
	}
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		u, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return openai.ClientConfig{}, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.BaseURL = u
	}
	if config.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: ValidateTimeout(config.Timeout)}
	}
	return cc, nil
}

func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(prompt, options))
	if err != nil {
		return "", 0, 0, classifyOpenAIError(p.classifier, err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrNoResponseChoice)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", 0, 0, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	return content, tokensOr(resp.Usage.PromptTokens, prompt), tokensOr(resp.Usage.CompletionTokens, content), nil
}

func (p *openAIProvider) buildRequest(prompt string, options RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if options.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     options.Model,
		Messages:  messages,
		MaxTokens: options.MaxTokens,
	}
	if options.Temperature != nil {
		req.Temperature = float32(clampFloat(*options.Temperature, MinTemperature, MaxTemperature))
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}
	if v, ok := optionalFloat(options.Extra, "frequency_penalty"); ok {
		req.FrequencyPenalty = float32(clampFloat(v, MinPenalty, MaxPenalty))
	}
	if v, ok := optionalFloat(options.Extra, "presence_penalty"); ok {
		req.PresencePenalty = float32(clampFloat(v, MinPenalty, MaxPenalty))
	}
	return req
}

func classifyOpenAIError(ec ErrorClassifier, err error) error {
	if pe := ec.ClassifyContextError(err); pe != nil {
		return pe
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "unknown error"
		}
		return ec.ClassifyHTTPError(apiErr.HTTPStatusCode, msg, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ec.ClassifyHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return ec.Unknown(err)
}
