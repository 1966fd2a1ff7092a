package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/opstrata/outage-cli/internal/model"
	"github.com/opstrata/outage-cli/internal/store"
)

// mockStore implements store.Store for failure-path tests. The happy
// path is covered against a real SQLite store instead.
type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) CreateRun(ctx context.Context, dataset model.DatasetInfo) (*model.Run, error) {
	args := m.Called(ctx, dataset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}

func (m *mockStore) UpdateRunResult(ctx context.Context, runID string, result *model.TrainResult) error {
	args := m.Called(ctx, runID, result)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	args := m.Called(ctx, runID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunPhase), args.Error(1)
}

func (m *mockStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	args := m.Called(ctx, phaseID, result)
	return args.Error(0)
}

func (m *mockStore) ArchiveRecords(ctx context.Context, runID string, records []model.Record) (int64, error) {
	args := m.Called(ctx, runID, records)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
