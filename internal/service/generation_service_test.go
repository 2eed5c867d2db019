package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type mockGenerationRepo struct {
	mu        sync.Mutex
	records   map[string]*models.TimetableGeneration
	finalized chan string
}

func newMockGenerationRepo() *mockGenerationRepo {
	return &mockGenerationRepo{
		records:   make(map[string]*models.TimetableGeneration),
		finalized: make(chan string, 4),
	}
}

func (m *mockGenerationRepo) Create(ctx context.Context, gen *models.TimetableGeneration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen.ID == "" {
		gen.ID = fmt.Sprintf("gen-%d", len(m.records)+1)
	}
	gen.Status = models.GenerationRunning
	gen.StartedAt = time.Now().UTC()
	stored := *gen
	m.records[gen.ID] = &stored
	return nil
}

func (m *mockGenerationRepo) Finalize(ctx context.Context, id, status string, results json.RawMessage, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.records[id]
	if !ok || gen.Status != models.GenerationRunning {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	gen.Status = status
	gen.FinishedAt = &now
	gen.Results = results
	gen.ErrorMessage = errorMessage
	select {
	case m.finalized <- id:
	default:
	}
	return nil
}

func (m *mockGenerationRepo) FindByID(ctx context.Context, id string) (*models.TimetableGeneration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen, ok := m.records[id]; ok {
		copied := *gen
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGenerationRepo) List(ctx context.Context, page, pageSize int) ([]models.TimetableGeneration, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TimetableGeneration
	for _, gen := range m.records {
		out = append(out, *gen)
	}
	return out, len(out), nil
}

type stubScanner struct {
	result *ScanResult
	err    error
	busy   int32
}

func (s *stubScanner) ScanOnce(ctx context.Context) (*ScanResult, error) {
	if atomic.AddInt32(&s.busy, -1) >= 0 {
		return nil, ErrScanInProgress
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func waitForFinalize(t *testing.T, repo *mockGenerationRepo) string {
	t.Helper()
	select {
	case id := <-repo.finalized:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("generation was never finalised")
		return ""
	}
}

func TestGenerationServiceStartCompletes(t *testing.T) {
	repo := newMockGenerationRepo()
	scanner := &stubScanner{result: &ScanResult{Scanned: 5, Detected: 2, RanAt: time.Now().UTC()}}
	svc := NewGenerationService(repo, scanner, nil)

	gen, err := svc.Start(context.Background(), json.RawMessage(`{"scope":"term"}`), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationRunning, gen.Status)

	id := waitForFinalize(t, repo)
	final, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCompleted, final.Status)
	assert.Contains(t, string(final.Results), `"conflicts_detected":2`)
}

func TestGenerationServiceStartFailureRecorded(t *testing.T) {
	repo := newMockGenerationRepo()
	scanner := &stubScanner{err: fmt.Errorf("window query timed out")}
	svc := NewGenerationService(repo, scanner, nil)

	_, err := svc.Start(context.Background(), nil, "admin-1")
	require.NoError(t, err)

	id := waitForFinalize(t, repo)
	final, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationFailed, final.Status)
	assert.Equal(t, "window query timed out", final.ErrorMessage)
}

func TestGenerationServiceWaitsOutBusyScanner(t *testing.T) {
	repo := newMockGenerationRepo()
	scanner := &stubScanner{busy: 1, result: &ScanResult{Scanned: 4, Detected: 1, RanAt: time.Now().UTC()}}
	svc := NewGenerationService(repo, scanner, nil)
	svc.retryDelay = time.Millisecond

	_, err := svc.Start(context.Background(), nil, "admin-1")
	require.NoError(t, err)

	id := waitForFinalize(t, repo)
	final, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCompleted, final.Status)
	assert.Contains(t, string(final.Results), `"conflicts_detected":1`)
}

func TestGenerationServiceBusyScannerFinalizesFailed(t *testing.T) {
	repo := newMockGenerationRepo()
	scanner := &stubScanner{busy: 100, result: &ScanResult{}}
	svc := NewGenerationService(repo, scanner, nil)
	svc.retryDelay = time.Millisecond

	_, err := svc.Start(context.Background(), nil, "admin-1")
	require.NoError(t, err)

	// a sweep that never ran must not produce a COMPLETED audit record
	id := waitForFinalize(t, repo)
	final, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationFailed, final.Status)
	assert.Equal(t, ErrScanInProgress.Message, final.ErrorMessage)
	assert.Empty(t, final.Results)
}

func TestGenerationServiceStartRejectsBadJSON(t *testing.T) {
	repo := newMockGenerationRepo()
	svc := NewGenerationService(repo, &stubScanner{result: &ScanResult{}}, nil)

	_, err := svc.Start(context.Background(), json.RawMessage(`{not json`), "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.records)
}

func TestGenerationServiceCancelRequiresRunning(t *testing.T) {
	repo := newMockGenerationRepo()
	scanner := &stubScanner{result: &ScanResult{}}
	svc := NewGenerationService(repo, scanner, nil)

	gen, err := svc.Start(context.Background(), nil, "admin-1")
	require.NoError(t, err)
	waitForFinalize(t, repo)

	_, err = svc.Cancel(context.Background(), gen.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}
