package summary

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

const systemPrompt = `You are a meeting assistant. Summarize the following ` +
	`multi-speaker meeting transcript. Produce a short overview paragraph ` +
	`followed by bullet points of key topics, decisions, and action items. ` +
	`Attribute points to speakers by name where it matters.`

// Config represents the summarizer configuration
type Config struct {
	Enabled        bool
	Model          string
	APIKey         string
	TimeoutSeconds int
}

// Summarizer produces an end-of-session summary of the full transcript.
// Purely additive: summary failures never affect the committed transcript.
type Summarizer struct {
	client openai.Client
	config Config
	logger *logger.Logger
}

// NewSummarizer creates a new transcript summarizer. Extra request options
// (a custom base URL, for instance) are passed through to the API client.
func NewSummarizer(config Config, log *logger.Logger, opts ...option.RequestOption) *Summarizer {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(config.APIKey)}, opts...)
	return &Summarizer{
		client: openai.NewClient(clientOpts...),
		config: config,
		logger: log.Named("summarizer"),
	}
}

// Summarize generates a summary of the session transcript
func (s *Summarizer) Summarize(ctx context.Context, sessionID string, lines []transcript.Line) (string, error) {
	if len(lines) == 0 {
		return "", fmt.Errorf("nothing to summarize: transcript is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.config.TimeoutSeconds)*time.Second)
	defer cancel()

	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "[%s] %s: %s\n", line.Time().Format("15:04:05"), line.SpeakerName, line.Text)
	}

	s.logger.Info("Generating session summary",
		logger.String("session_id", sessionID),
		logger.Int("lines", len(lines)),
		logger.String("model", s.config.Model))

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(b.String()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary response contained no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// WriteSummary stores the summary next to the session's other artifacts
func (s *Summarizer) WriteSummary(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}
