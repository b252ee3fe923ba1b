// Package ocr extracts text from images embedded in PDFs. The default
// engine posts the image to an OpenAI-compatible vision model; tests use
// fakes.
package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"mcpress/internal/config"
)

// Engine turns image bytes into text.
type Engine interface {
	Extract(ctx context.Context, mimeType string, data []byte) (string, error)
}

const extractPrompt = "Transcribe all legible text in this image exactly as written. " +
	"Preserve line breaks. Output only the transcription, nothing else."

// VisionClient is an Engine backed by a multimodal chat model.
type VisionClient struct {
	sdk   sdk.Client
	model string
}

func NewVisionClient(cfg config.OCRConfig) *VisionClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &VisionClient{sdk: sdk.NewClient(opts...), model: cfg.Model}
}

// Extract sends the image as a data URL content part and returns the
// model's transcription.
func (c *VisionClient) Extract(ctx context.Context, mimeType string, data []byte) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	parts := []sdk.ChatCompletionContentPartUnionParam{
		{OfText: &sdk.ChatCompletionContentPartTextParam{Text: extractPrompt}},
		{OfImageURL: &sdk.ChatCompletionContentPartImageParam{
			ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
		}},
	}
	user := sdk.ChatCompletionUserMessageParam{
		Content: sdk.ChatCompletionUserMessageParamContentUnion{
			OfArrayOfContentParts: parts,
		},
	}
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			{OfUser: &user},
		},
		Temperature: sdk.Float(0),
	}
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}

// Meaningful reports whether OCR output carries enough signal to keep:
// at least minChars non-whitespace characters after normalization.
func Meaningful(text string, minChars int) bool {
	n := 0
	for _, r := range text {
		if !isSpace(r) {
			n++
			if n >= minChars {
				return true
			}
		}
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// Normalize collapses whitespace runs in OCR output.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
