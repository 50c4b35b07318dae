package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable marks a generator response that is not a usable suggestion.
var ErrUnparseable = errors.New("inference: unparseable response")

// Confidence is the model's self-reported certainty in a suggestion.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence accepts high, medium or low in any case. Anything else is an error.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown confidence %q", ErrUnparseable, s)
	}
}

// AspectQuery is the context sent to the model for one missing aspect.
type AspectQuery struct {
	AspectName   string
	ProductTitle string
	CategoryName string
}

// Suggestion is a parsed model answer.
type Suggestion struct {
	Value      string
	Pattern    string
	Confidence Confidence
}

const aspectSystemPrompt = `You fill in marketplace item specifics from product titles.
Answer with a single JSON object and nothing else:
{"aspectValue": "<value for the aspect>", "keywordPattern": "<case-insensitive regular expression that detects this value in similar titles>", "confidence": "high|medium|low"}
Use "high" only when the title states the value explicitly.`

// AspectInferrer asks a TextGenerator for an aspect value and a reusable title pattern.
type AspectInferrer struct {
	gen TextGenerator
}

func NewAspectInferrer(gen TextGenerator) *AspectInferrer {
	return &AspectInferrer{gen: gen}
}

// Infer returns the parsed suggestion. Generator failures are returned as is;
// malformed answers wrap ErrUnparseable.
func (a *AspectInferrer) Infer(ctx context.Context, q AspectQuery) (*Suggestion, error) {
	userPrompt := fmt.Sprintf("Aspect: %s\nCategory: %s\nProduct title: %s", q.AspectName, q.CategoryName, q.ProductTitle)
	raw, err := a.gen.GenerateText(ctx, aspectSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return ParseSuggestion(raw)
}

type suggestionPayload struct {
	AspectValue    string `json:"aspectValue"`
	KeywordPattern string `json:"keywordPattern"`
	Confidence     string `json:"confidence"`
}

// ParseSuggestion extracts the JSON object from a model answer, tolerating
// code fences and surrounding prose.
func ParseSuggestion(raw string) (*Suggestion, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparseable)
	}
	var p suggestionPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	value := strings.TrimSpace(p.AspectValue)
	pattern := strings.TrimSpace(p.KeywordPattern)
	if value == "" || pattern == "" {
		return nil, fmt.Errorf("%w: empty aspectValue or keywordPattern", ErrUnparseable)
	}
	conf, err := ParseConfidence(p.Confidence)
	if err != nil {
		return nil, err
	}
	return &Suggestion{Value: value, Pattern: pattern, Confidence: conf}, nil
}
