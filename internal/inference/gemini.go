package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGenerator calls generateContent on one Gemini model, asking for JSON output.
type GeminiGenerator struct {
	endpoint   string
	header     http.Header
	httpClient *http.Client
}

// NewGeminiGenerator requires an API key. An empty or OpenAI baseURL falls back
// to the public Gemini endpoint.
func NewGeminiGenerator(baseURL, apiKey, model string, timeout time.Duration) (*GeminiGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("inference: gemini api key required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || strings.Contains(baseURL, "api.openai.com") {
		baseURL = defaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	return &GeminiGenerator{
		endpoint:   fmt.Sprintf("%s/models/%s:generateContent", baseURL, model),
		header:     http.Header{"X-Goog-Api-Key": {apiKey}},
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type geminiText struct {
	Text string `json:"text"`
}

type geminiTurn struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiText `json:"parts"`
}

// GenerateText implements TextGenerator. The text of every part of the first
// candidate is joined.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := struct {
		Contents          []geminiTurn `json:"contents"`
		SystemInstruction *geminiTurn  `json:"systemInstruction,omitempty"`
		GenerationConfig  struct {
			ResponseMimeType string `json:"responseMimeType"`
		} `json:"generationConfig"`
	}{Contents: []geminiTurn{{Role: "user", Parts: []geminiText{{Text: userPrompt}}}}}
	req.GenerationConfig.ResponseMimeType = "application/json"
	if strings.TrimSpace(systemPrompt) != "" {
		req.SystemInstruction = &geminiTurn{Parts: []geminiText{{Text: systemPrompt}}}
	}

	var resp struct {
		Candidates []struct {
			Content geminiTurn `json:"content"`
		} `json:"candidates"`
	}
	if err := postJSON(ctx, g.httpClient, "gemini", g.endpoint, g.header, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini: empty response")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
