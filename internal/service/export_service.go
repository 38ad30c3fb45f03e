package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet   = "Summary"
	questionsSheet = "Questions"
)

// ResultExporter renders an attempt's results as an xlsx workbook.
type ResultExporter interface {
	ExportResults(ctx context.Context, attemptID uint, userID string) ([]byte, string, error)
}

type resultExporter struct {
	attempts AttemptService
}

func NewResultExporter(attempts AttemptService) ResultExporter {
	return &resultExporter{attempts: attempts}
}

func (e *resultExporter) ExportResults(ctx context.Context, attemptID uint, userID string) ([]byte, string, error) {
	view, err := e.attempts.GetResultsView(ctx, attemptID, userID)
	if err != nil {
		return nil, "", err
	}
	data, err := renderResultWorkbook(view)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("attempt-%d-results.xlsx", attemptID), nil
}

func renderResultWorkbook(view *dto.ResultView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Attempt", view.ID},
		{"Status", view.Status},
		{"Started at", view.StartedAt},
	}
	if view.MockExam != nil {
		summary = append(summary, []interface{}{"Mock exam", view.MockExam.Title})
	}
	if view.CompletedAt != nil {
		summary = append(summary, []interface{}{"Completed at", *view.CompletedAt})
	}
	summary = append(summary,
		[]interface{}{"Total score", derefFloat(view.TotalScore)},
		[]interface{}{"Max possible score", derefFloat(view.MaxPossibleScore)},
		[]interface{}{"Percentage", derefFloat(view.Percentage)},
		[]interface{}{"CEFR level", derefString(view.CefrLevelAchieved)},
		[]interface{}{"Feedback", derefString(view.CefrFeedback)},
	)

	sections := make([]string, 0, len(view.SectionScores))
	for name := range view.SectionScores {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	if len(sections) > 0 {
		summary = append(summary, []interface{}{}, []interface{}{"Section", "Score", "Max"})
		for _, name := range sections {
			s := view.SectionScores[name]
			summary = append(summary, []interface{}{name, s.Score, s.Max})
		}
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	rows := [][]interface{}{{
		"Order", "Section", "Type", "Question", "Answer", "Correct", "Points earned", "Score", "Max score", "Feedback",
	}}
	for _, q := range view.Questions {
		correct := ""
		if q.IsCorrect != nil {
			correct = fmt.Sprintf("%t", *q.IsCorrect)
		}
		rows = append(rows, []interface{}{
			q.Order,
			q.Section,
			q.Type,
			q.QuestionText,
			q.AnswerText,
			correct,
			derefFloat(q.PointsEarned),
			derefFloat(q.Score),
			q.MaxScore,
			derefString(q.AIFeedback),
		})
	}
	if err := writeRows(f, questionsSheet, rows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
