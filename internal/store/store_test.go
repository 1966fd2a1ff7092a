package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opstrata/outage-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testDataset(source string) model.DatasetInfo {
	return model.DatasetInfo{Source: source, Records: 240, Positives: 31, Negatives: 209}
}

func testRecords() []model.Record {
	start := time.Date(2024, 3, 13, 14, 30, 0, 0, time.UTC)
	return []model.Record{
		{
			IncidentID:       "INC-1001",
			Start:            start,
			End:              start.Add(90 * time.Minute),
			Entity:           "payments",
			Application:      "checkout",
			CrisisLevel:      "P4",
			ProblemStatement: "database connection pool exhausted",
			CorrectiveAction: "restarted pool",
		},
		{
			IncidentID:  "INC-1002",
			Start:       start.Add(24 * time.Hour),
			End:         start.Add(25 * time.Hour),
			Entity:      "search",
			Application: "indexer",
			CrisisLevel: "P1",
		},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		dataset := testDataset("exports/incidents_2024.xlsx")
		run, err := s.CreateRun(ctx, dataset)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusQueued, run.Status)
		assert.Equal(t, dataset, run.Dataset)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusQueued, got.Status)
		assert.Equal(t, dataset, got.Dataset)
		assert.Nil(t, got.Result)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRun(context.Background(), "nonexistent-id")
		require.Error(t, err)
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testDataset("exports/q1.csv"))
		require.NoError(t, err)

		err = s.UpdateRunStatus(ctx, run.ID, model.RunStatusSearching)
		require.NoError(t, err)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusSearching, got.Status)
	})

	t.Run("UpdateRunStatusNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.UpdateRunStatus(context.Background(), "nonexistent-id", model.RunStatusSearching)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("UpdateRunResult", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testDataset("exports/q1.csv"))
		require.NoError(t, err)

		result := &model.TrainResult{
			Seed:           42,
			TestFraction:   0.2,
			Folds:          5,
			TrainRows:      192,
			TestRows:       48,
			RebalancedRows: 334,
			Features:       61,
			Best: model.Hyperparams{
				Trees:           300,
				MaxDepth:        20,
				MinSamplesSplit: 5,
				MinSamplesLeaf:  2,
				ClassWeight:     model.ClassWeightBalanced,
			},
			CVScore: 0.912,
			Metrics: model.MetricsBundle{
				ROCAUC:    0.9143,
				PRAUC:     0.6821,
				Accuracy:  0.9167,
				Confusion: [2][2]int{{41, 1}, {3, 3}},
				Report:    "precision recall f1",
				TestRows:  48,
			},
			Importances: []model.FeatureImportance{
				{Feature: "duration_hours", Score: 0.31},
				{Feature: "entity=payments", Score: 0.12},
			},
			Candidates: []model.CandidateScore{
				{Params: model.Hyperparams{Trees: 300}, FoldScores: []float64{0.9, 0.92, 0.91, 0.93, 0.9}, Mean: 0.912},
				{Params: model.Hyperparams{Trees: 100}, FoldScores: []float64{}, Failed: true, Note: "forest: fit failed"},
			},
			Phases: []model.PhaseResult{
				{Name: "derive", Status: model.PhaseStatusComplete, Duration: 12, Metadata: map[string]any{"rows": float64(240)}},
			},
			Duration: 5321,
		}

		err = s.UpdateRunResult(ctx, run.ID, result)
		require.NoError(t, err)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, result, got.Result)
	})

	t.Run("UpdateRunResultNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.UpdateRunResult(context.Background(), "nonexistent-id", &model.TrainResult{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateRun(ctx, testDataset("exports/a.csv"))
		require.NoError(t, err)
		run2, err := s.CreateRun(ctx, testDataset("exports/b.csv"))
		require.NoError(t, err)
		err = s.UpdateRunStatus(ctx, run2.ID, model.RunStatusComplete)
		require.NoError(t, err)

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		queued, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusQueued})
		require.NoError(t, err)
		assert.Len(t, queued, 1)
		assert.Equal(t, "exports/a.csv", queued[0].Dataset.Source)

		complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		assert.Len(t, complete, 1)
		assert.Equal(t, run2.ID, complete[0].ID)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("ListRunsBySource", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateRun(ctx, testDataset("exports/a.csv"))
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, testDataset("exports/b.csv"))
		require.NoError(t, err)

		filtered, err := s.ListRuns(ctx, RunFilter{Source: "exports/a.csv"})
		require.NoError(t, err)
		assert.Len(t, filtered, 1)
		assert.Equal(t, "exports/a.csv", filtered[0].Dataset.Source)
	})

	t.Run("ListRunsWithOffset", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, src := range []string{"exports/a.csv", "exports/b.csv", "exports/c.csv"} {
			_, err := s.CreateRun(ctx, testDataset(src))
			require.NoError(t, err)
		}

		paged, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, paged, 1)
	})

	t.Run("CreateAndCompletePhase", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testDataset("exports/q1.csv"))
		require.NoError(t, err)

		phase, err := s.CreatePhase(ctx, run.ID, "rebalance")
		require.NoError(t, err)
		assert.NotEmpty(t, phase.ID)
		assert.Equal(t, run.ID, phase.RunID)
		assert.Equal(t, "rebalance", phase.Name)
		assert.Equal(t, model.PhaseStatusRunning, phase.Status)

		result := &model.PhaseResult{
			Name:     "rebalance",
			Status:   model.PhaseStatusComplete,
			Duration: 37,
			Metadata: map[string]any{"synthesized": float64(142)},
		}

		err = s.CompletePhase(ctx, phase.ID, result)
		require.NoError(t, err)
	})

	t.Run("CompletePhaseNotFound", func(t *testing.T) {
		s := newStore(t)

		result := &model.PhaseResult{
			Name:   "rebalance",
			Status: model.PhaseStatusComplete,
		}

		err := s.CompletePhase(context.Background(), "nonexistent-id", result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ArchiveRecords", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testDataset("exports/q1.csv"))
		require.NoError(t, err)

		n, err := s.ArchiveRecords(ctx, run.ID, testRecords())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("ArchiveRecordsEmpty", func(t *testing.T) {
		s := newStore(t)

		n, err := s.ArchiveRecords(context.Background(), "any-run", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
