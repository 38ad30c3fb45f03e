package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lshigami/cefrexam/internal/events"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/lshigami/cefrexam/internal/storage"
	"gorm.io/gorm"
)

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- usage ---

type fakeUsageRepo struct {
	mu     sync.Mutex
	rows   []model.UsageTracking
	nextID uint
}

func (r *fakeUsageRepo) FindWithinPeriod(_ context.Context, userID string, usageType model.UsageType, start, end time.Time) (*model.UsageTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		row := r.rows[i]
		if row.UserID == userID && row.UsageType == usageType &&
			!row.PeriodStart.Before(start) && !row.PeriodEnd.After(end) {
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUsageRepo) CreateIfAbsent(_ context.Context, usage *model.UsageTracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == usage.UserID && row.UsageType == usage.UsageType && row.PeriodStart.Equal(usage.PeriodStart) {
			return nil
		}
	}
	r.nextID++
	usage.ID = r.nextID
	r.rows = append(r.rows, *usage)
	return nil
}

func (r *fakeUsageRepo) Increment(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			r.rows[i].UsedCount++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeUsageRepo) IncrementForPeriod(ctx context.Context, userID string, usageType model.UsageType, start, end time.Time) error {
	row := &model.UsageTracking{UserID: userID, UsageType: usageType, PeriodStart: start, PeriodEnd: end}
	if err := r.CreateIfAbsent(ctx, row); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].UserID == userID && r.rows[i].UsageType == usageType && r.rows[i].PeriodStart.Equal(start) {
			r.rows[i].UsedCount++
		}
	}
	return nil
}

func (r *fakeUsageRepo) SumUsed(_ context.Context, userID string, usageType model.UsageType) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, row := range r.rows {
		if row.UserID == userID && row.UsageType == usageType {
			total += row.UsedCount
		}
	}
	return total, nil
}

func (r *fakeUsageRepo) seed(row model.UsageTracking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	row.ID = r.nextID
	r.rows = append(r.rows, row)
}

func (r *fakeUsageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- subscriptions & purchases ---

type fakeSubscriptionRepo struct {
	subs []model.Subscription
	err  error
}

func (r *fakeSubscriptionRepo) Create(_ context.Context, sub *model.Subscription) error {
	sub.ID = uint(len(r.subs) + 1)
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *fakeSubscriptionRepo) FindActivePro(_ context.Context, userID string, now time.Time) (*model.Subscription, error) {
	if r.err != nil {
		return nil, r.err
	}
	var best *model.Subscription
	for i := range r.subs {
		s := r.subs[i]
		if s.UserID != userID || s.PlanType != model.PlanPro || s.Status != "active" {
			continue
		}
		if s.StartedAt.After(now) || !s.ExpiresAt.After(now) {
			continue
		}
		if best == nil || s.ExpiresAt.After(best.ExpiresAt) {
			best = &s
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

type fakePurchaseRepo struct {
	purchases []model.Purchase
}

func (r *fakePurchaseRepo) Create(_ context.Context, p *model.Purchase) error {
	p.ID = uint(len(r.purchases) + 1)
	r.purchases = append(r.purchases, *p)
	return nil
}

func (r *fakePurchaseRepo) FindValid(_ context.Context, userID, productType string, now time.Time) ([]model.Purchase, error) {
	var out []model.Purchase
	for _, p := range r.purchases {
		if p.UserID == userID && p.ProductType == productType && p.RemainingUses > 0 && p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r *fakePurchaseRepo) DecrementRemaining(_ context.Context, id uint) error {
	for i := range r.purchases {
		if r.purchases[i].ID == id && r.purchases[i].RemainingUses > 0 {
			r.purchases[i].RemainingUses--
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// --- exams & questions ---

type fakeMockExamRepo struct {
	exams map[uint]*model.MockExam
}

func newFakeMockExamRepo(exams ...model.MockExam) *fakeMockExamRepo {
	r := &fakeMockExamRepo{exams: make(map[uint]*model.MockExam)}
	for i := range exams {
		e := exams[i]
		r.exams[e.ID] = &e
	}
	return r
}

func (r *fakeMockExamRepo) Create(_ context.Context, exam *model.MockExam) error {
	exam.ID = uint(len(r.exams) + 1)
	for i := range exam.Questions {
		exam.Questions[i].ID = exam.ID*100 + uint(i) + 1
		exam.Questions[i].MockExamID = exam.ID
	}
	stored := *exam
	r.exams[exam.ID] = &stored
	return nil
}

func (r *fakeMockExamRepo) FindByID(_ context.Context, id uint) (*model.MockExam, error) {
	e, ok := r.exams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *e
	out.Questions = nil
	return &out, nil
}

func (r *fakeMockExamRepo) FindByIDWithQuestions(_ context.Context, id uint) (*model.MockExam, error) {
	e, ok := r.exams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *e
	out.Questions = append([]model.Question(nil), e.Questions...)
	sort.Slice(out.Questions, func(i, j int) bool { return out.Questions[i].OrderInExam < out.Questions[j].OrderInExam })
	return &out, nil
}

func (r *fakeMockExamRepo) FindAllWithQuestionCount(_ context.Context) ([]repository.MockExamWithCount, error) {
	var out []repository.MockExamWithCount
	for _, e := range r.exams {
		out = append(out, repository.MockExamWithCount{MockExam: *e, QuestionCount: len(e.Questions)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeQuestionRepo struct {
	exams *fakeMockExamRepo
}

func (r *fakeQuestionRepo) FindByMockExamID(ctx context.Context, mockExamID uint) ([]model.Question, error) {
	exam, err := r.exams.FindByIDWithQuestions(ctx, mockExamID)
	if err != nil {
		return []model.Question{}, nil
	}
	return exam.Questions, nil
}

// --- attempts & answers ---

type fakeAnswerRepo struct {
	mu      sync.Mutex
	rows    []model.Answer
	nextID  uint
	upserts int
}

func sameAnswerKey(a, b model.Answer) bool {
	if a.AttemptID != b.AttemptID {
		return false
	}
	if a.AttemptQuestionID != nil && b.AttemptQuestionID != nil {
		return *a.AttemptQuestionID == *b.AttemptQuestionID
	}
	if a.QuestionID != nil && b.QuestionID != nil {
		return *a.QuestionID == *b.QuestionID
	}
	return false
}

func (r *fakeAnswerRepo) Upsert(_ context.Context, answer *model.Answer, updateColumns ...string) error {
	if answer.AttemptQuestionID == nil && answer.QuestionID == nil {
		return repository.ErrAnswerKeyMissing
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	for i := range r.rows {
		if !sameAnswerKey(r.rows[i], *answer) {
			continue
		}
		row := &r.rows[i]
		for _, col := range updateColumns {
			switch col {
			case "answer_text":
				row.AnswerText = answer.AnswerText
			case "audio_url":
				row.AudioURL = answer.AudioURL
			case "is_correct":
				row.IsCorrect = answer.IsCorrect
			case "points_earned":
				row.PointsEarned = answer.PointsEarned
			case "score":
				row.Score = answer.Score
			case "ai_feedback":
				row.AIFeedback = answer.AIFeedback
			}
		}
		answer.ID = row.ID
		return nil
	}
	r.nextID++
	answer.ID = r.nextID
	r.rows = append(r.rows, *answer)
	return nil
}

func (r *fakeAnswerRepo) FindByAttempt(_ context.Context, attemptID uint) ([]model.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Answer
	for _, a := range r.rows {
		if a.AttemptID == attemptID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAnswerRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[uint]*model.Attempt
	answers  *fakeAnswerRepo
	exams    *fakeMockExamRepo
	nextID   uint
	// completeHook runs before the compare-and-swap, e.g. to simulate a concurrent winner.
	completeHook func(a *model.Attempt)
}

func newFakeAttemptRepo(answers *fakeAnswerRepo, exams *fakeMockExamRepo) *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[uint]*model.Attempt), answers: answers, exams: exams}
}

func (r *fakeAttemptRepo) Create(_ context.Context, attempt *model.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	attempt.ID = r.nextID
	for i := range attempt.Questions {
		attempt.Questions[i].ID = attempt.ID*1000 + uint(i) + 1
		attempt.Questions[i].AttemptID = attempt.ID
	}
	stored := *attempt
	stored.Questions = append([]model.AttemptQuestion(nil), attempt.Questions...)
	stored.MockExam = nil
	stored.Answers = nil
	r.attempts[attempt.ID] = &stored
	return nil
}

func (r *fakeAttemptRepo) FindByIDForUser(ctx context.Context, id uint, userID string) (*model.Attempt, error) {
	r.mu.Lock()
	stored, ok := r.attempts[id]
	if !ok || stored.UserID != userID {
		r.mu.Unlock()
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	out.Questions = append([]model.AttemptQuestion(nil), stored.Questions...)
	r.mu.Unlock()

	sort.SliceStable(out.Questions, func(i, j int) bool { return out.Questions[i].Order < out.Questions[j].Order })
	out.Answers, _ = r.answers.FindByAttempt(ctx, id)
	if out.MockExamID != nil && r.exams != nil {
		if exam, err := r.exams.FindByID(ctx, *out.MockExamID); err == nil {
			out.MockExam = exam
		}
	}
	return &out, nil
}

func (r *fakeAttemptRepo) FindAttemptQuestion(_ context.Context, attemptID, attemptQuestionID uint) (*model.AttemptQuestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	for _, q := range a.Questions {
		if q.ID == attemptQuestionID {
			out := q
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) ListByUser(ctx context.Context, userID string, cursor uint, limit int) ([]model.Attempt, error) {
	r.mu.Lock()
	var ids []uint
	for id, a := range r.attempts {
		if a.UserID == userID && (cursor == 0 || id < cursor) {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]model.Attempt, 0, len(ids))
	for _, id := range ids {
		a, _ := r.FindByIDForUser(ctx, id, userID)
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeAttemptRepo) Complete(_ context.Context, attempt *model.Attempt) (bool, error) {
	if r.completeHook != nil {
		r.completeHook(attempt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attempts[attempt.ID]
	if !ok || stored.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	stored.Status = model.AttemptStatusCompleted
	stored.CompletedAt = attempt.CompletedAt
	stored.TotalScore = attempt.TotalScore
	stored.MaxPossibleScore = attempt.MaxPossibleScore
	stored.Percentage = attempt.Percentage
	stored.CefrLevelAchieved = attempt.CefrLevelAchieved
	stored.CefrFeedback = attempt.CefrFeedback
	stored.SectionScores = attempt.SectionScores
	return true, nil
}

func (r *fakeAttemptRepo) stored(id uint) model.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.attempts[id]
}

// --- progress & profile ---

type fakeProgressRepo struct {
	byUser map[string]*model.UserProgress
	err    error
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{byUser: make(map[string]*model.UserProgress)}
}

func (r *fakeProgressRepo) RecordCompletion(_ context.Context, userID, cefrLevel string, at time.Time) error {
	if r.err != nil {
		return r.err
	}
	p, ok := r.byUser[userID]
	if !ok {
		p = &model.UserProgress{UserID: userID}
		r.byUser[userID] = p
	}
	level := cefrLevel
	p.TotalExamsTaken++
	p.CurrentCefrEstimate = &level
	p.LastActivityAt = at
	return nil
}

func (r *fakeProgressRepo) FindByUser(_ context.Context, userID string) (*model.UserProgress, error) {
	p, ok := r.byUser[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *p
	return &out, nil
}

type fakeProfileRepo struct {
	languages map[string]string
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{languages: make(map[string]string)}
}

func (r *fakeProfileRepo) LanguagePreference(_ context.Context, userID string) (string, error) {
	return r.languages[userID], nil
}

func (r *fakeProfileRepo) SetLanguagePreference(_ context.Context, userID, language string) error {
	r.languages[userID] = language
	return nil
}

// --- AI, storage & events ---

type fakeLLM struct {
	mu            sync.Mutex
	writingScore  func(text string) (GradeResult, error)
	speakingScore func(transcript string) (GradeResult, error)
	transcribe    func(path string) (string, error)
	generate      func(prompt string) (string, error)
	writingCalls  int
	speakingCalls int
	lastLevel     string
	lastPrompt    string
}

func (f *fakeLLM) GradeWriting(_ context.Context, level string, _ RubricTask, text string) (GradeResult, error) {
	f.mu.Lock()
	f.writingCalls++
	f.lastLevel = level
	f.mu.Unlock()
	if f.writingScore == nil {
		return GradeResult{}, ErrAIUnavailable
	}
	return f.writingScore(text)
}

func (f *fakeLLM) GradeSpeaking(_ context.Context, level string, _ RubricTask, transcript string) (GradeResult, error) {
	f.mu.Lock()
	f.speakingCalls++
	f.lastLevel = level
	f.mu.Unlock()
	if f.speakingScore == nil {
		return GradeResult{}, ErrAIUnavailable
	}
	return f.speakingScore(transcript)
}

func (f *fakeLLM) TranscribeAudio(_ context.Context, path string) (string, error) {
	if f.transcribe == nil {
		return "", ErrAIUnavailable
	}
	return f.transcribe(path)
}

func (f *fakeLLM) GenerateText(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.lastPrompt = prompt
	f.mu.Unlock()
	if f.generate == nil {
		return "", ErrAIUnavailable
	}
	return f.generate(prompt)
}

func (f *fakeLLM) Close() error { return nil }

type recordingPublisher struct {
	mu        sync.Mutex
	completed []events.AttemptCompletedEvent
	usage     []events.UsageRecordedEvent
	err       error
}

func (p *recordingPublisher) PublishAttemptCompleted(_ context.Context, e events.AttemptCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return p.err
}

func (p *recordingPublisher) PublishUsageRecorded(_ context.Context, e events.UsageRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage = append(p.usage, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newTestAudioStorage(t *testing.T) storage.AudioStorage {
	t.Helper()
	audio, err := storage.NewDiskAudioStorage(t.TempDir(), "/uploads", storage.DefaultMaxAudioBytes)
	if err != nil {
		t.Fatalf("audio storage: %v", err)
	}
	return audio
}
