package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportResults_Workbook(t *testing.T) {
	f := newAttemptFixture(t, sampleExam())
	view := f.start(t, "u1")
	ctx := context.Background()
	mcq := view.Questions[1].ID
	_, err := f.svc.SaveAnswer(ctx, view.ID, "u1", dto.SaveAnswerRequest{AttemptQuestionID: &mcq, AnswerText: "a"})
	require.NoError(t, err)

	grading := NewGradingService(GradingDeps{
		AttemptRepo:  f.attempts,
		AnswerRepo:   f.answers,
		QuestionRepo: &fakeQuestionRepo{exams: f.exams},
		ProgressRepo: newFakeProgressRepo(),
		ProfileRepo:  newFakeProfileRepo(),
		Writing:      &fakeLLM{},
		Speaking:     &fakeLLM{},
		Transcriber:  &fakeLLM{},
		Checker:      NewAnswerChecker(),
		Evaluator:    NewCefrEvaluator(nil),
		Audio:        f.svc.audio,
	})
	_, err = grading.Submit(ctx, view.ID, "u1", dto.SubmitAttemptRequest{})
	require.NoError(t, err)

	data, name, err := NewResultExporter(f.svc).ExportResults(ctx, view.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "attempt-1-results.xlsx", name)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{summarySheet, questionsSheet}, wb.GetSheetList())

	summary, err := wb.GetRows(summarySheet)
	require.NoError(t, err)
	values := map[string]string{}
	for _, row := range summary {
		if len(row) >= 2 {
			values[row[0]] = row[1]
		}
	}
	assert.Equal(t, "COMPLETED", values["Status"])
	assert.Equal(t, "B2 Mock", values["Mock exam"])
	assert.Equal(t, "1", values["Total score"])
	assert.Equal(t, "12", values["Max possible score"])
	assert.Equal(t, "speaking", summary[len(summary)-1][0], "sections are listed alphabetically")

	questions, err := wb.GetRows(questionsSheet)
	require.NoError(t, err)
	require.Len(t, questions, 4)
	assert.Equal(t, "Order", questions[0][0])
	assert.Equal(t, "Choose a", questions[2][3])
	assert.Equal(t, "a", questions[2][4])
	assert.Equal(t, "true", questions[2][5])
}

func TestExportResults_UnknownAttempt(t *testing.T) {
	f := newAttemptFixture(t, sampleExam())
	_, _, err := NewResultExporter(f.svc).ExportResults(context.Background(), 99, "u1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
