package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestLevelForPercentage(t *testing.T) {
	tests := []struct {
		percentage float64
		want       string
	}{
		{0, "A1"},
		{19.99, "A1"},
		{20, "A2"},
		{39.99, "A2"},
		{40, "B1"},
		{58.82, "B1"},
		{60, "B2"},
		{74.99, "B2"},
		{75, "C1"},
		{89.99, "C1"},
		{90, "C2"},
		{100, "C2"},
	}
	for _, tt := range tests {
		got := LevelForPercentage(tt.percentage)
		assert.Equal(t, tt.want, got.Level, "percentage %v", tt.percentage)
		assert.NotEmpty(t, got.Feedback)
	}
}

func TestEvaluateCefrLevel_UsesModelAnswer(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateText", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return containsAll(prompt, "58.82", `"ru"`, "B1")
	})).Return("**Level:** C1\nFeedback:\nОтличная работа.", nil).Once()

	eval, err := NewCefrEvaluator(gen).EvaluateCefrLevel(context.Background(), 10, 17, 58.82, "ru")
	require.NoError(t, err)
	assert.Equal(t, "C1", eval.Level)
	assert.Equal(t, "Отличная работа.", eval.Feedback)
	gen.AssertExpectations(t)
}

func TestEvaluateCefrLevel_FallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"model error", "", errBoom},
		{"unknown level", "Level: Z9\nFeedback: hmm", nil},
		{"no level line", "You did great!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(mockGenerator)
			gen.On("GenerateText", mock.Anything, mock.Anything).Return(tt.reply, tt.err)

			eval, err := NewCefrEvaluator(gen).EvaluateCefrLevel(context.Background(), 15, 20, 75, "")
			require.NoError(t, err)
			assert.Equal(t, LevelForPercentage(75), eval)
			gen.AssertNumberOfCalls(t, "GenerateText", 1)
		})
	}
}

func TestEvaluateCefrLevel_MissingFeedbackUsesBandText(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return("Level: a2", nil)

	eval, err := NewCefrEvaluator(gen).EvaluateCefrLevel(context.Background(), 6, 20, 30, "en")
	require.NoError(t, err)
	assert.Equal(t, "A2", eval.Level)
	assert.Equal(t, LevelForPercentage(30).Feedback, eval.Feedback)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
