// Package llm implements the postit.TextGenerator contract over an
// OpenAI-compatible chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "gpt-4o-mini"
	defaultTemperature    = 0.7
	defaultCallTimeout    = 45 * time.Second
	defaultRewriteTimeout = 12 * time.Second
	maxHashtags           = 8
)

var languageNames = map[postit.LanguageCode]string{
	postit.LanguageDutch:   "Dutch",
	postit.LanguageEnglish: "English",
	postit.LanguageGerman:  "German",
	postit.LanguageFrench:  "French",
	postit.LanguageSpanish: "Spanish",
}

// Config carries the client settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	CallTimeout    time.Duration
	RewriteTimeout time.Duration
}

// Client calls the chat-completions API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient wires a Client, applying defaults for unset fields.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	if config.RewriteTimeout <= 0 {
		config.RewriteTimeout = defaultRewriteTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.CallTimeout},
	}, nil
}

// GeneratePost produces one social media post from the wizard intake.
func (client *Client) GeneratePost(ctx context.Context, intake postit.Intake) (string, error) {
	system := "You write exactly one social media post. No explanations. No questions."
	if name, known := languageNames[intake.Language]; known {
		system += " Write the post in " + name + "."
	}
	user := fmt.Sprintf("Notes: %s\nAudience: %s\nIntent: %s\nContext: %s\nDirection: %s",
		intake.Notes, intake.Audience, intake.Intent, intake.Context, intake.Keywords)
	return client.complete(ctx, system, user)
}

// Rewrite produces a variant of an existing post. A hung provider call
// degrades to a templated continuation instead of blocking the request.
func (client *Client) Rewrite(ctx context.Context, request postit.RewriteRequest) (string, error) {
	rewriteCtx, cancel := context.WithTimeout(ctx, client.config.RewriteTimeout)
	defer cancel()

	system := "You rewrite exactly one social media post. Keep the message intact. No explanations."
	var user string
	switch request.Option {
	case postit.OptionTone:
		user = fmt.Sprintf("Rewrite this post in a %s tone:\n\n%s", request.Tone, request.Text)
	case postit.OptionLanguage:
		name := languageNames[request.TargetLanguage]
		if name == "" {
			name = string(request.TargetLanguage)
		}
		user = fmt.Sprintf("Translate this post into %s, keeping the style:\n\n%s", name, request.Text)
	case postit.OptionRegenerate:
		user = fmt.Sprintf("Write a fresh take on this post, same topic and intent:\n\n%s", request.Text)
	default:
		user = fmt.Sprintf("Rephrase this post with different wording:\n\n%s", request.Text)
	}

	text, err := client.complete(rewriteCtx, system, user)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(rewriteCtx.Err(), context.DeadlineExceeded) {
			return fallbackRewrite(request), nil
		}
		return "", err
	}
	return text, nil
}

// Hashtags suggests hashtags for a post.
func (client *Client) Hashtags(ctx context.Context, text string) ([]string, error) {
	system := fmt.Sprintf("You suggest at most %d hashtags for a social media post. Respond with hashtags only, one per line, each starting with #.", maxHashtags)
	raw, err := client.complete(ctx, system, text)
	if err != nil {
		return nil, err
	}
	return parseHashtags(raw), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (client *Client) complete(ctx context.Context, system string, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       client.config.Model,
		Temperature: defaultTemperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm encode: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+client.config.APIKey)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("llm read: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("llm status %d: %s", response.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("llm status %d", response.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func fallbackRewrite(request postit.RewriteRequest) string {
	text := strings.TrimSpace(request.Text)
	switch request.Option {
	case postit.OptionTone:
		return fmt.Sprintf("%s\n\n(%s)", text, strings.TrimSpace(request.Tone))
	default:
		return text
	}
}

func parseHashtags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ' ' || r == ',' || r == '\t'
	})
	tags := make([]string, 0, maxHashtags)
	seen := map[string]struct{}{}
	for _, field := range fields {
		tag := strings.TrimSpace(field)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		lowered := strings.ToLower(tag)
		if _, duplicate := seen[lowered]; duplicate {
			continue
		}
		seen[lowered] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxHashtags {
			break
		}
	}
	return tags
}
