package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService(t *testing.T) {
	svc := NewCatalogService(newFakeMockExamRepo(sampleExam()))
	ctx := context.Background()

	items, err := svc.ListMockExams(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B2 Mock", items[0].Title)
	assert.Equal(t, 3, items[0].QuestionCount)

	detail, err := svc.GetMockExam(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), detail.ID)
	assert.Equal(t, 90, detail.DurationMinutes)
	assert.Equal(t, map[string]int{"reading": 1, "listening": 1, "speaking": 1}, detail.Sections)

	_, err = svc.GetMockExam(ctx, 404)
	assert.ErrorIs(t, err, ErrMockExamNotFound)
}
