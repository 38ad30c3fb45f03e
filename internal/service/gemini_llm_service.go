package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lshigami/cefrexam/config"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// RubricTask is what a rubric grader needs to know about a writing or speaking task.
type RubricTask struct {
	Prompt   string
	Rubric   json.RawMessage
	MaxScore float64
}

type GradeResult struct {
	Score    float64
	Feedback string
}

type WritingGrader interface {
	GradeWriting(ctx context.Context, level string, task RubricTask, text string) (GradeResult, error)
}

type SpeakingGrader interface {
	GradeSpeaking(ctx context.Context, level string, task RubricTask, transcript string) (GradeResult, error)
}

type Transcriber interface {
	TranscribeAudio(ctx context.Context, localPath string) (string, error)
}

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type GeminiLLMService interface {
	WritingGrader
	SpeakingGrader
	Transcriber
	TextGenerator
	Close() error
}

type geminiLLMService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiLLMService returns a service whose calls all fail with ErrAIUnavailable when no API key is set.
func NewGeminiLLMService(cfg *config.Config) (GeminiLLMService, error) {
	if cfg.GeminiApiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set. AI grading will fall back to zero scores.")
		return &geminiLLMService{}, nil
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiApiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	name := cfg.GeminiModel
	if name == "" {
		name = "gemini-1.5-flash"
	}
	return &geminiLLMService{client: client, model: client.GenerativeModel(name)}, nil
}

func (s *geminiLLMService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *geminiLLMService) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	if s.model == nil {
		return "", ErrAIUnavailable
	}
	resp, err := s.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no content")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text content")
	}
	return sb.String(), nil
}

func (s *geminiLLMService) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, genai.Text(prompt))
}

func (s *geminiLLMService) GradeWriting(ctx context.Context, level string, task RubricTask, text string) (GradeResult, error) {
	var sb strings.Builder
	sb.WriteString("You are an experienced CEFR writing examiner.\n")
	fmt.Fprintf(&sb, "The candidate is sitting a %s level exam and answered the writing task below.\n\n", levelOrDefault(level))
	writeTaskAndRubric(&sb, task)
	sb.WriteString("Evaluate task achievement, coherence and cohesion, vocabulary range and accuracy, and grammatical range and accuracy.\n\n")
	sb.WriteString("Candidate's Answer:\n---\n")
	sb.WriteString(text)
	sb.WriteString("\n---\n\n")
	sb.WriteString(outputFormatInstruction(task.MaxScore))
	return s.scoreWithPrompt(ctx, sb.String(), task.MaxScore)
}

func (s *geminiLLMService) GradeSpeaking(ctx context.Context, level string, task RubricTask, transcript string) (GradeResult, error) {
	var sb strings.Builder
	sb.WriteString("You are an experienced CEFR speaking examiner.\n")
	fmt.Fprintf(&sb, "The candidate is sitting a %s level exam. Below is an automatic transcript of their spoken answer.\n", levelOrDefault(level))
	sb.WriteString("Transcripts lose intonation and may contain recognition errors, so do not penalise obvious transcription artefacts.\n\n")
	writeTaskAndRubric(&sb, task)
	sb.WriteString("Evaluate fluency and coherence, lexical resource, grammatical range and accuracy, and relevance to the task.\n\n")
	sb.WriteString("Transcript:\n---\n")
	sb.WriteString(transcript)
	sb.WriteString("\n---\n\n")
	sb.WriteString(outputFormatInstruction(task.MaxScore))
	return s.scoreWithPrompt(ctx, sb.String(), task.MaxScore)
}

func (s *geminiLLMService) scoreWithPrompt(ctx context.Context, prompt string, maxScore float64) (GradeResult, error) {
	raw, err := s.generate(ctx, genai.Text(prompt))
	if err != nil {
		return GradeResult{}, err
	}
	scoreStr, feedback, err := parseScoreAndFeedback(raw)
	if err != nil {
		log.Warn().Err(err).Str("rawResponse", raw).Msg("Failed to parse score and feedback from Gemini response")
		return GradeResult{}, err
	}
	score, err := parseScoreValue(scoreStr, maxScore)
	if err != nil {
		return GradeResult{}, err
	}
	return GradeResult{Score: score, Feedback: strings.TrimSpace(feedback)}, nil
}

// parseScoreValue turns the extracted score text into a clamped, finite score.
func parseScoreValue(scoreStr string, maxScore float64) (float64, error) {
	score, err := strconv.ParseFloat(strings.TrimSpace(scoreStr), 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse score value %q from AI response: %w", scoreStr, err)
	}
	if !isFiniteScore(score) {
		return 0, fmt.Errorf("AI response score %q is not a finite number", scoreStr)
	}
	return clampScore(score, maxScore), nil
}

func isFiniteScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0)
}

var audioMIMEByExt = map[string]string{
	".webm": "audio/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
}

func (s *geminiLLMService) TranscribeAudio(ctx context.Context, localPath string) (string, error) {
	if s.model == nil {
		return "", ErrAIUnavailable
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio %s: %w", localPath, err)
	}
	ext := strings.ToLower(filepath.Ext(localPath))
	mimeType, ok := audioMIMEByExt[ext]
	if !ok {
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		return "", fmt.Errorf("cannot determine audio type of %s", localPath)
	}

	text, err := s.generate(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text("Transcribe the speech in this recording verbatim. Return only the transcript text, with no commentary. If there is no intelligible speech, return an empty response."),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "general English"
	}
	return level
}

func writeTaskAndRubric(sb *strings.Builder, task RubricTask) {
	sb.WriteString("Task Prompt:\n---\n")
	sb.WriteString(task.Prompt)
	sb.WriteString("\n---\n\n")
	if len(task.Rubric) > 0 && string(task.Rubric) != "null" {
		sb.WriteString("Scoring Rubric (JSON):\n")
		sb.Write(task.Rubric)
		sb.WriteString("\n\n")
	}
}

func outputFormatInstruction(maxScore float64) string {
	return fmt.Sprintf(`Please provide your evaluation in two distinct parts:
1. Score: A numerical score from 0.0 to %.1f reflecting the overall quality against the rubric.
2. Feedback: Concise, constructive feedback addressed to the candidate: strengths, specific errors with corrections, and one or two priorities for improvement.

Format your response strictly as:
Score: [Your Numerical Score Here]
Feedback:
[Your Feedback Here]
`, maxScore)
}

// parseScoreAndFeedback splits a "Score: x / Feedback: ..." answer.
func parseScoreAndFeedback(rawResponse string) (scoreStr string, feedbackStr string, err error) {
	const scorePrefix = "Score:"
	const feedbackPrefix = "Feedback:"

	scoreIndex := strings.Index(rawResponse, scorePrefix)
	if scoreIndex == -1 {
		return "", rawResponse, fmt.Errorf("response does not contain %q prefix", scorePrefix)
	}
	feedbackIndex := strings.Index(rawResponse, feedbackPrefix)

	rest := rawResponse[scoreIndex+len(scorePrefix):]
	endOfScoreLine := strings.Index(rest, "\n")
	if endOfScoreLine == -1 {
		scoreStr = strings.TrimSpace(rest)
	} else {
		scoreStr = strings.TrimSpace(rest[:endOfScoreLine])
	}

	switch {
	case feedbackIndex > scoreIndex:
		feedbackStr = strings.TrimSpace(rawResponse[feedbackIndex+len(feedbackPrefix):])
	case endOfScoreLine != -1:
		feedbackStr = strings.TrimSpace(rest[endOfScoreLine+1:])
	default:
		feedbackStr = "Feedback not found in the expected format after the score."
	}

	// "7.5/10" or "7.5 out of 10" -> "7.5"
	if parts := strings.Fields(scoreStr); len(parts) > 0 {
		scoreStr = parts[0]
	}
	if i := strings.Index(scoreStr, "/"); i > 0 {
		scoreStr = scoreStr[:i]
	}
	return scoreStr, feedbackStr, nil
}

func clampScore(score, maxScore float64) float64 {
	if score < 0 {
		return 0
	}
	if maxScore > 0 && score > maxScore {
		return maxScore
	}
	return score
}
