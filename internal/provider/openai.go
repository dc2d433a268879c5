package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/puente-salud/puente/internal/interp"
)

const (
	defaultRealtimeURL    = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview"
	defaultConnectTimeout = 10 * time.Second
)

// OpenAI is the live Provider implementation. The realtime channel is a
// direct websocket to the provider; translate/synthesize/summarize use the
// request/response API.
type OpenAI struct {
	client      *openai.Client
	apiKey      string
	chatModel   string
	realtimeURL string
	timeout     time.Duration
	sleep       func(time.Duration)
}

func NewOpenAI(apiKey, chatModel string, connectTimeout time.Duration) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), apiKey, chatModel, connectTimeout)
}

func NewOpenAIWithConfig(config openai.ClientConfig, apiKey, chatModel string, connectTimeout time.Duration) *OpenAI {
	if strings.TrimSpace(chatModel) == "" {
		chatModel = openai.GPT4o
	}
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(config),
		apiKey:      apiKey,
		chatModel:   chatModel,
		realtimeURL: defaultRealtimeURL,
		timeout:     connectTimeout,
		sleep:       time.Sleep,
	}
}

// SetRealtimeURL overrides the realtime endpoint, used by tests to point the
// channel at a local server.
func (p *OpenAI) SetRealtimeURL(url string) {
	p.realtimeURL = url
}

func (p *OpenAI) Realtime(ctx context.Context, cfg RealtimeConfig) (RealtimeChannel, error) {
	return dialRealtime(ctx, p.realtimeURL, p.apiKey, cfg, p.timeout)
}

func (p *OpenAI) Translate(ctx context.Context, text string, from, to interp.Language) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"You are a professional medical interpreter. "+
						"Translate the following from %s to %s. "+
						"Maintain medical terminology accurately.",
					from.Name(), to.Name(),
				),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translate: no choices in response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAI) Synthesize(ctx context.Context, text string, lang interp.Language) ([]byte, error) {
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Voice: openai.SpeechVoice(VoiceFor(lang)),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer func() { _ = resp.Close() }()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	return audio, nil
}

const summarySystemPrompt = `You are a medical scribe analyzing a conversation between a doctor and patient.
Create a concise summary of the conversation and identify any actions needed.
Format your response as JSON with two keys:
1. "text" - A paragraph summarizing the key points of the conversation
2. "actions" - An array of strings listing detected actions such as "Schedule follow-up appointment" or "Send lab order"`

func (p *OpenAI) Summarize(ctx context.Context, conversation string) (SummaryResult, error) {
	req := openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: conversation},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return SummaryResult{}, fmt.Errorf("summarize: no choices in response")
			}
			var result SummaryResult
			if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
				return SummaryResult{}, fmt.Errorf("parse summary response: %w", err)
			}
			return result, nil
		}

		lastErr = err
		if attempt < len(backoff)-1 {
			p.sleep(backoff[attempt])
		}
	}

	return SummaryResult{}, fmt.Errorf("summarize failed after retries: %w", lastErr)
}
