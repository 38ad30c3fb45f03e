package dto

type MockExamCatalogItem struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Level           string `json:"level"`
	DurationMinutes int    `json:"duration_minutes"`
	QuestionCount   int    `json:"question_count"`
}

// MockExamDetail describes an exam before it is started; question content stays hidden.
type MockExamDetail struct {
	MockExamCatalogItem
	Sections map[string]int `json:"sections"`
}
