package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadenrich-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "leads.csv", "out.csv", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "leads.csv", "out.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, input_path, output_path, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_WithResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	resultJSON := []byte(`{"counters":{"total":3,"found":2,"not_found":1,"no_query":0,"errored":0,"enrich_failed":0,"skipped_budget":0,"resumed":0,"search_calls":4,"scrape_calls":2,"total_cost":0.0246}}`)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, input_path, output_path, status, result, created_at, updated_at FROM runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "input_path", "output_path", "status", "result", "created_at", "updated_at"}).
			AddRow("run-1", "in.csv", "out.csv", model.RunStatusComplete, &resultJSON, now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run.Result)
	assert.Equal(t, 3, run.Result.Counters.Total)
	assert.InDelta(t, 0.0246, run.Result.Counters.TotalCost, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET result`).
		WithArgs(pgxmock.AnyArg(), "halted", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "run-1", model.RunStatusHalted, &model.RunResult{
		Counters: model.Counters{Total: 5, SkippedBudget: 3},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, input_path, output_path, status, result, created_at, updated_at FROM runs WHERE true AND status = \$1`).
		WithArgs("complete", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "input_path", "output_path", "status", "result", "created_at", "updated_at"}).
			AddRow("run-1", "in.csv", "out.csv", model.RunStatusComplete, (*[]byte)(nil), now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Nil(t, runs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRowOutcomes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM run_rows WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"run_rows"}, runRowColumns).WillReturnResult(2)

	rows := []model.EnrichedLead{
		{
			Lead:    model.Lead{Row: 1},
			Profile: &model.ResolvedProfile{ProfileURL: "https://www.instagram.com/a", Username: "a"},
			Status:  model.RowStatusDone,
			Cost:    0.0073,
		},
		{Lead: model.Lead{Row: 2}, Status: model.RowStatusNoQuery},
	}
	require.NoError(t, s.SaveRowOutcomes(context.Background(), "run-1", rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRowOutcomes_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.SaveRowOutcomes(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRowOutcomes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT run_id, row_num, status, profile_url, username, cost, error FROM run_rows`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "row_num", "status", "profile_url", "username", "cost", "error"}).
			AddRow("run-1", 1, "done", "https://www.instagram.com/a", "a", 0.0073, "").
			AddRow("run-1", 2, "errored", "", "", 0.015, "search: 502"))

	outcomes, err := s.ListRowOutcomes(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, model.RowStatusDone, outcomes[0].Status)
	assert.Equal(t, "search: 502", outcomes[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}
