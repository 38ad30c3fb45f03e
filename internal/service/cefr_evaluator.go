package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type CefrEvaluation struct {
	Level    string
	Feedback string
}

type CefrEvaluator interface {
	EvaluateCefrLevel(ctx context.Context, totalScore, maxPossibleScore, percentage float64, languageCode string) (CefrEvaluation, error)
}

var cefrLevels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// cefrBand is the fallback mapping used when the AI evaluator is unavailable.
type cefrBand struct {
	below    float64
	level    string
	feedback string
}

var cefrBands = []cefrBand{
	{20, "A1", "You can understand and use familiar everyday expressions. Focus on core vocabulary and simple sentence patterns."},
	{40, "A2", "You can handle simple, routine tasks. Work on linking sentences and expanding vocabulary for everyday topics."},
	{60, "B1", "You can deal with most familiar situations. Practise longer texts and more precise grammar to move towards B2."},
	{75, "B2", "You can interact with a degree of fluency. Aim for greater accuracy and a wider range of structures."},
	{90, "C1", "You use language flexibly and effectively. Polish nuance, idiomatic usage and complex argumentation."},
}

// LevelForPercentage maps a percentage score onto the fallback CEFR bands.
func LevelForPercentage(percentage float64) CefrEvaluation {
	for _, b := range cefrBands {
		if percentage < b.below {
			return CefrEvaluation{Level: b.level, Feedback: b.feedback}
		}
	}
	return CefrEvaluation{Level: "C2", Feedback: c2Feedback}
}

const c2Feedback = "You have near-native command of the language. Keep exposing yourself to varied authentic material."

func feedbackForLevel(level string) string {
	for _, b := range cefrBands {
		if b.level == level {
			return b.feedback
		}
	}
	return c2Feedback
}

type cefrEvaluator struct {
	generator TextGenerator
}

func NewCefrEvaluator(generator TextGenerator) CefrEvaluator {
	return &cefrEvaluator{generator: generator}
}

// EvaluateCefrLevel asks the model for a level and feedback and falls back to the band table
// when the model is unavailable or answers outside the expected format.
func (e *cefrEvaluator) EvaluateCefrLevel(ctx context.Context, totalScore, maxPossibleScore, percentage float64, languageCode string) (CefrEvaluation, error) {
	fallback := LevelForPercentage(percentage)
	if e.generator == nil {
		return fallback, nil
	}

	if languageCode == "" {
		languageCode = "en"
	}
	prompt := fmt.Sprintf(`You are a CEFR assessment expert. A learner finished a multi-skill mock exam.
Total score: %.2f out of %.2f (%.1f%%).
A percentage-only estimate places them at %s.
Decide the learner's overall CEFR level (one of A1, A2, B1, B2, C1, C2) and write two or three sentences of encouraging, actionable feedback.
Write the feedback in the language with ISO 639-1 code %q.

Format your response strictly as:
Level: [A1|A2|B1|B2|C1|C2]
Feedback:
[Your Feedback Here]
`, totalScore, maxPossibleScore, percentage, fallback.Level, languageCode)

	raw, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Float64("percentage", percentage).Msg("CEFR evaluation unavailable, using band table")
		return fallback, nil
	}
	eval, ok := parseCefrEvaluation(raw)
	if !ok {
		log.Warn().Str("rawResponse", raw).Msg("Could not parse CEFR evaluation, using band table")
		return fallback, nil
	}
	return eval, nil
}

func parseCefrEvaluation(raw string) (CefrEvaluation, bool) {
	const levelPrefix = "Level:"
	const feedbackPrefix = "Feedback:"

	idx := strings.Index(raw, levelPrefix)
	if idx == -1 {
		return CefrEvaluation{}, false
	}
	rest := raw[idx+len(levelPrefix):]
	line := rest
	if nl := strings.Index(rest, "\n"); nl != -1 {
		line = rest[:nl]
	}
	level := strings.ToUpper(strings.Trim(strings.TrimSpace(line), "*[]. "))
	valid := false
	for _, l := range cefrLevels {
		if level == l {
			valid = true
			break
		}
	}
	if !valid {
		return CefrEvaluation{}, false
	}

	feedback := ""
	if fi := strings.Index(rest, feedbackPrefix); fi != -1 {
		feedback = strings.TrimSpace(rest[fi+len(feedbackPrefix):])
	}
	if feedback == "" {
		feedback = feedbackForLevel(level)
	}
	return CefrEvaluation{Level: level, Feedback: feedback}, true
}
