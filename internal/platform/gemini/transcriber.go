package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/transcription"
)

// transcribePrompt instructs the model to return the spoken words only.
const transcribePrompt = `Transcribe the spoken audio verbatim. Return only the transcription text, with no commentary, labels, or formatting.`

// analysisPromptTemplate produces the analysis request. The model must
// answer with JSON matching analysisSchema.
const analysisPromptTemplate = `You are analyzing a transcribed voice note.
{{if .ContextHint}}Note context: {{.ContextHint}}
{{end}}Transcription:
"""
{{.Transcription}}
"""

Respond with a JSON object and nothing else, using exactly these keys:
{
  "summary": "one or two sentence recap",
  "sentiment": "positive, negative, neutral, or mixed",
  "topics": ["subject", ...],
  "action_items": ["concrete follow-up", ...]
}
Use empty arrays when there are no topics or action items.`

// GeminiTranscriber implements the transcription.Service interface using
// Google's Gemini API for both audio transcription and semantic analysis.
type GeminiTranscriber struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains AI-specific configuration
	config config.AIConfig

	// analysisTemplate is the parsed template for analysis prompts
	analysisTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	// callTimeout bounds each individual API call
	callTimeout time.Duration
}

// NewGeminiTranscriber creates a new GeminiTranscriber with the provided
// dependencies. The ctx is used for client initialization only.
func NewGeminiTranscriber(ctx context.Context, logger *slog.Logger, cfg config.AIConfig) (*GeminiTranscriber, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", transcription.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", transcription.ErrInvalidConfig)
	}

	analysisTemplate, err := template.New("analysis").Parse(analysisPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse analysis template: %v",
			transcription.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			transcription.ErrInvalidConfig, err)
	}

	callTimeout := time.Duration(cfg.CallTimeoutSeconds) * time.Second
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}

	return &GeminiTranscriber{
		logger:           logger.With(slog.String("component", "gemini_transcriber")),
		config:           cfg,
		analysisTemplate: analysisTemplate,
		client:           client,
		model:            cfg.ModelName,
		callTimeout:      callTimeout,
	}, nil
}

// Ensure GeminiTranscriber implements transcription.Service interface
var _ transcription.Service = (*GeminiTranscriber)(nil)

// Transcribe implements transcription.Service.Transcribe.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, clip transcription.AudioClip) (string, error) {
	if len(clip.Data) == 0 {
		return "", transcription.ErrEmptyAudio
	}

	mimeType := clip.MIMEType
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	g.logger.InfoContext(ctx, "requesting transcription",
		slog.Int("audio_bytes", len(clip.Data)),
		slog.String("mime_type", mimeType))

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(clip.Data, mimeType),
		}, genai.RoleUser),
	}

	text, err := g.generate(ctx, contents, nil)
	if err != nil {
		// Both sentinels stay in the chain: callers match the classified
		// error (transient, blocked) with errors.Is through this wrap.
		return "", fmt.Errorf("%w: %w", transcription.ErrTranscriptionFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcription", transcription.ErrInvalidResponse)
	}

	g.logger.InfoContext(ctx, "transcription received",
		slog.Int("length", len(text)))
	return text, nil
}

// Analyze implements transcription.Service.Analyze.
func (g *GeminiTranscriber) Analyze(ctx context.Context, transcript string, contextHint string) (*domain.NoteAnalysis, error) {
	if transcript == "" {
		return nil, transcription.ErrEmptyTranscription
	}

	prompt, err := g.createAnalysisPrompt(transcript, contextHint)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "requesting analysis",
		slog.Int("transcript_length", len(transcript)))

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	text, err := g.generate(ctx, contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transcription.ErrAnalysisFailed, err)
	}

	analysis, err := parseAnalysisResponse(text)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "analysis received",
		slog.Int("topics", len(analysis.Topics)),
		slog.Int("action_items", len(analysis.ActionItems)))
	return analysis, nil
}

// createAnalysisPrompt renders the analysis template with the
// transcription and optional context hint.
func (g *GeminiTranscriber) createAnalysisPrompt(transcript, contextHint string) (string, error) {
	var buf bytes.Buffer
	err := g.analysisTemplate.Execute(&buf, promptData{
		Transcription: transcript,
		ContextHint:   contextHint,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute analysis template: %w", err)
	}
	return buf.String(), nil
}

// generate makes one model call under the configured timeout and
// extracts the response text, classifying failures into the sentinel
// errors the pipeline retries on.
func (g *GeminiTranscriber) generate(ctx context.Context, contents []*genai.Content, genConfig *genai.GenerateContentConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, contents, genConfig)
	if err != nil {
		g.logger.ErrorContext(ctx, "Gemini API call failed",
			slog.String("error", err.Error()))
		return "", classifyAPIError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", transcription.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", transcription.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", transcription.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	return text.String(), nil
}

// parseAnalysisResponse decodes the model's JSON answer into a domain
// analysis. Responses wrapped in markdown fences are unwrapped first;
// the model occasionally adds them despite the JSON response type.
func parseAnalysisResponse(text string) (*domain.NoteAnalysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("%w: empty analysis response", transcription.ErrInvalidResponse)
	}

	var schema analysisSchema
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v",
			transcription.ErrInvalidResponse, err)
	}

	if schema.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", transcription.ErrInvalidResponse)
	}

	sentiment := strings.ToLower(strings.TrimSpace(schema.Sentiment))
	switch sentiment {
	case "positive", "negative", "neutral", "mixed":
	default:
		sentiment = "neutral"
	}

	analysis := &domain.NoteAnalysis{
		Summary:     schema.Summary,
		Sentiment:   sentiment,
		Topics:      schema.Topics,
		ActionItems: schema.ActionItems,
	}
	if analysis.Topics == nil {
		analysis.Topics = []string{}
	}
	if analysis.ActionItems == nil {
		analysis.ActionItems = []string{}
	}

	return analysis, nil
}

// classifyAPIError maps a raw API error to the transient or permanent
// sentinel the retry layer keys off.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", transcription.ErrTransientFailure, err)
	}

	if isQuotaError(err) {
		return fmt.Errorf("%w: quota exhausted: %v", transcription.ErrTransientFailure, err)
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"unavailable",
		"deadline exceeded",
		"internal error",
		"connection reset",
		"connection refused",
		"timeout",
		"503",
		"500",
	} {
		if strings.Contains(errStr, pattern) {
			return fmt.Errorf("%w: %v", transcription.ErrTransientFailure, err)
		}
	}

	// Unknown API errors are treated as transient: the retry budget
	// bounds the damage, and misclassifying a transient error as
	// permanent would strand the note.
	return fmt.Errorf("%w: %v", transcription.ErrTransientFailure, err)
}

// isQuotaError checks if the error is related to API quota exhaustion.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	quotaPatterns := []string{
		"quota exceeded",
		"quota_exceeded",
		"resource exhausted",
		"resource_exhausted",
		"you exceeded your current quota",
		"insufficient quota",
		"429",
	}

	for _, pattern := range quotaPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
