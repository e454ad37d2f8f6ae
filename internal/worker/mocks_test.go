package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
	"github.com/voxnote/voxnote-api/internal/transcription"
)

// mockNoteStore implements store.NoteStore with injectable behavior.
// Methods without an injected func return zero values.
type mockNoteStore struct {
	createFn          func(ctx context.Context, note *domain.Note) error
	getByIDFn         func(ctx context.Context, id uuid.UUID) (*domain.Note, error)
	acquireLockFn     func(ctx context.Context, id uuid.UUID, lockTimeout time.Duration) (bool, error)
	releaseLockFn     func(ctx context.Context, id uuid.UUID) error
	selectFn          func(ctx context.Context, params store.CandidateParams) ([]*domain.Note, error)
	saveTransFn       func(ctx context.Context, id uuid.UUID, transcription string) error
	markCompletedFn   func(ctx context.Context, id uuid.UUID, analysis *domain.NoteAnalysis) (bool, error)
	recordFailureFn   func(ctx context.Context, id uuid.UUID, message string) error
	resetStaleFn      func(ctx context.Context, olderThan time.Duration) (int, error)
	forceResetFn      func(ctx context.Context) (int, error)

	// call counters for interaction assertions
	acquireLockCalls   int
	releaseLockCalls   int
	saveTransCalls     int
	markCompletedCalls int
	recordFailureCalls int
}

var _ store.NoteStore = (*mockNoteStore)(nil)

func (m *mockNoteStore) Create(ctx context.Context, note *domain.Note) error {
	if m.createFn != nil {
		return m.createFn(ctx, note)
	}
	return nil
}

func (m *mockNoteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNoteNotFound
}

func (m *mockNoteStore) AcquireLock(ctx context.Context, id uuid.UUID, lockTimeout time.Duration) (bool, error) {
	m.acquireLockCalls++
	if m.acquireLockFn != nil {
		return m.acquireLockFn(ctx, id, lockTimeout)
	}
	return true, nil
}

func (m *mockNoteStore) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	m.releaseLockCalls++
	if m.releaseLockFn != nil {
		return m.releaseLockFn(ctx, id)
	}
	return nil
}

func (m *mockNoteStore) SelectCandidates(ctx context.Context, params store.CandidateParams) ([]*domain.Note, error) {
	if m.selectFn != nil {
		return m.selectFn(ctx, params)
	}
	return nil, nil
}

func (m *mockNoteStore) SaveTranscription(ctx context.Context, id uuid.UUID, transcription string) error {
	m.saveTransCalls++
	if m.saveTransFn != nil {
		return m.saveTransFn(ctx, id, transcription)
	}
	return nil
}

func (m *mockNoteStore) MarkCompleted(ctx context.Context, id uuid.UUID, analysis *domain.NoteAnalysis) (bool, error) {
	m.markCompletedCalls++
	if m.markCompletedFn != nil {
		return m.markCompletedFn(ctx, id, analysis)
	}
	return true, nil
}

func (m *mockNoteStore) RecordFailure(ctx context.Context, id uuid.UUID, message string) error {
	m.recordFailureCalls++
	if m.recordFailureFn != nil {
		return m.recordFailureFn(ctx, id, message)
	}
	return nil
}

func (m *mockNoteStore) ResetStaleLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.resetStaleFn != nil {
		return m.resetStaleFn(ctx, olderThan)
	}
	return 0, nil
}

func (m *mockNoteStore) ForceResetLocks(ctx context.Context) (int, error) {
	if m.forceResetFn != nil {
		return m.forceResetFn(ctx)
	}
	return 0, nil
}

func (m *mockNoteStore) CountActive(ctx context.Context, lockTimeout time.Duration) (int, error) {
	return 0, nil
}

func (m *mockNoteStore) AverageLockAge(ctx context.Context, lockTimeout time.Duration) (time.Duration, error) {
	return 0, nil
}

func (m *mockNoteStore) RecentErrors(ctx context.Context, limit int) ([]store.NoteError, error) {
	return nil, nil
}

func (m *mockNoteStore) UserStats(ctx context.Context, userID uuid.UUID, lockTimeout time.Duration, maxAttempts int) (*store.UserNoteStats, error) {
	return &store.UserNoteStats{}, nil
}

func (m *mockNoteStore) Insights(ctx context.Context, userID *uuid.UUID, since time.Time) (*store.PipelineInsights, error) {
	return &store.PipelineInsights{}, nil
}

func (m *mockNoteStore) CostUsage(ctx context.Context, userID *uuid.UUID, since time.Time) (*store.CostUsage, error) {
	return &store.CostUsage{}, nil
}

func (m *mockNoteStore) WithTx(tx *sql.Tx) store.NoteStore {
	return m
}

// mockService implements transcription.Service with injectable behavior.
type mockService struct {
	transcribeFn func(ctx context.Context, clip transcription.AudioClip) (string, error)
	analyzeFn    func(ctx context.Context, transcript string, contextHint string) (*domain.NoteAnalysis, error)

	transcribeCalls int
	analyzeCalls    int
}

var _ transcription.Service = (*mockService)(nil)

func (m *mockService) Transcribe(ctx context.Context, clip transcription.AudioClip) (string, error) {
	m.transcribeCalls++
	if m.transcribeFn != nil {
		return m.transcribeFn(ctx, clip)
	}
	return "mock transcription", nil
}

func (m *mockService) Analyze(ctx context.Context, transcript string, contextHint string) (*domain.NoteAnalysis, error) {
	m.analyzeCalls++
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, transcript, contextHint)
	}
	return &domain.NoteAnalysis{
		Summary:     "mock summary",
		Sentiment:   "neutral",
		Topics:      []string{},
		ActionItems: []string{},
	}, nil
}

// mockFetcher implements AudioFetcher.
type mockFetcher struct {
	fetchFn func(ctx context.Context, objectKey string) (transcription.AudioClip, error)
}

var _ AudioFetcher = (*mockFetcher)(nil)

func (m *mockFetcher) Fetch(ctx context.Context, objectKey string) (transcription.AudioClip, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, objectKey)
	}
	return transcription.AudioClip{Data: []byte("audio"), MIMEType: "audio/ogg"}, nil
}

// mockUsageStore implements store.UsageStore for quota wiring.
type mockUsageStore struct {
	countFn func(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

var _ store.UsageStore = (*mockUsageStore)(nil)

func (m *mockUsageStore) UpsertStorageUsage(ctx context.Context, userID uuid.UUID, deltaBytes int64) error {
	return nil
}

func (m *mockUsageStore) GetStorageUsage(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, store.ErrUsageNotFound
}

func (m *mockUsageStore) CountProcessingActivity(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, userID, since)
	}
	return 0, nil
}

func (m *mockUsageStore) WithTx(tx *sql.Tx) store.UsageStore {
	return m
}

// mockLister implements quota.ObjectLister.
type mockLister struct {
	usage int64
	err   error
}

func (m *mockLister) UserUsage(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.usage, nil
}

var errBackend = errors.New("backend unavailable")
