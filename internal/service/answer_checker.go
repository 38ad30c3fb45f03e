package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

type AnswerChecker interface {
	IsAnswerCorrect(userText string, correctAnswerRaw []byte) bool
}

type answerChecker struct{}

func NewAnswerChecker() AnswerChecker {
	return answerChecker{}
}

// IsAnswerCorrect compares case-insensitively with collapsed whitespace. The stored key may be a
// JSON string, number, bool, or an array of accepted alternatives, or a bare string.
func (answerChecker) IsAnswerCorrect(userText string, correctAnswerRaw []byte) bool {
	given := normalizeAnswer(userText)
	if given == "" {
		return false
	}
	for _, accepted := range acceptedAnswers(correctAnswerRaw) {
		if normalizeAnswer(accepted) == given {
			return true
		}
	}
	return false
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func acceptedAnswers(raw []byte) []string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return []string{trimmed}
	}
	switch v := decoded.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, scalarString(item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{scalarString(v)}
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprint(t)
	}
}
