// Package translate is the HTTP client for the external translation and AI
// services. All calls run through retrying transports and per-service circuit
// breakers; the host never talks to the network directly.
package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/config"
	"github.com/lingolens/lingolens-go/internal/logging"
	"github.com/lingolens/lingolens-go/internal/protocol"
	"github.com/lingolens/lingolens-go/internal/resilience"
)

// Client talks to the translation and AI endpoints.
type Client struct {
	http *resty.Client
	cfg  config.ServicesConfig
	log  *logging.Logger

	translateBreaker *resilience.Breaker
	aiBreaker        *resilience.Breaker
}

// New creates a client from service configuration.
func New(cfg config.ServicesConfig, log *logging.Logger) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryMax
	retry.HTTPClient.Timeout = cfg.Timeout
	retry.Logger = nil

	httpClient := resty.NewWithClient(retry.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	onTrip := func(name string, from, to resilience.State) {
		log.Warn("service breaker state change",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	return &Client{
		http: httpClient,
		cfg:  cfg,
		log:  log,
		translateBreaker: resilience.New("translate", resilience.Options{
			Threshold: 5, Cooldown: 30 * time.Second, OnStateChange: onTrip,
		}),
		aiBreaker: resilience.New("ai", resilience.Options{
			Threshold: 5, Cooldown: 30 * time.Second, OnStateChange: onTrip,
		}),
	}
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// TranslateOne translates a single string into the target language.
func (c *Client) TranslateOne(ctx context.Context, text, language string) (string, error) {
	var out translateResponse
	err := c.translateBreaker.Do(func() error {
		return c.post(ctx, c.cfg.TranslateURL, translateRequest{
			Text:           text,
			TargetLanguage: language,
		}, &out)
	})
	if err != nil {
		return "", err
	}
	if out.TranslatedText == "" {
		return "", fmt.Errorf("translation service returned an empty result")
	}
	return out.TranslatedText, nil
}

type batchRequest struct {
	Texts          []string `json:"texts"`
	TargetLanguage string   `json:"targetLanguage"`
}

type batchResponse struct {
	Translations []string `json:"translations"`
}

// TranslateMany translates texts in one round trip. The service contract is
// positional: translation i corresponds to texts[i].
func (c *Client) TranslateMany(ctx context.Context, texts []string, language string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out batchResponse
	err := c.translateBreaker.Do(func() error {
		return c.post(ctx, c.cfg.BatchURL, batchRequest{
			Texts:          texts,
			TargetLanguage: language,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Translations) != len(texts) {
		return nil, fmt.Errorf("batch service returned %d translations for %d texts",
			len(out.Translations), len(texts))
	}
	return out.Translations, nil
}

type aiRequest struct {
	Action          string `json:"action"`
	SelectedText    string `json:"selectedText"`
	SurroundingText string `json:"surroundingText"`
	PageTitle       string `json:"pageTitle"`
}

type aiResponse struct {
	Result string `json:"result"`
}

// Act runs one selection-toolbar AI action.
func (c *Client) Act(ctx context.Context, action protocol.Type, selected, surrounding, pageTitle string) (string, error) {
	name, err := actionName(action)
	if err != nil {
		return "", err
	}
	var out aiResponse
	err = c.aiBreaker.Do(func() error {
		return c.post(ctx, c.cfg.AIActionURL, aiRequest{
			Action:          name,
			SelectedText:    selected,
			SurroundingText: surrounding,
			PageTitle:       pageTitle,
		}, &out)
	})
	if err != nil {
		return "", err
	}
	return out.Result, nil
}

// actionName maps a wire message type to the service's action verb.
func actionName(t protocol.Type) (string, error) {
	switch t {
	case protocol.TypeExplainRequest:
		return "explain", nil
	case protocol.TypeSummarizeRequest:
		return "summarize", nil
	case protocol.TypeSimplifyRequest:
		return "simplify", nil
	case protocol.TypeMeaningRequest:
		return "meaning", nil
	default:
		return "", fmt.Errorf("not an AI action type: %s", t)
	}
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Post(url)
	if err != nil {
		return fmt.Errorf("service call failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("service returned %s: %s", resp.Status(), summarize(resp.String()))
	}
	return nil
}

// summarize truncates an error body for logs.
func summarize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
