package repositories

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellabio/concentra/internal/application/analysis"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// fakeTx embeds the pgx.Tx interface and overrides only what SaveResult
// touches; the rest panics if reached.
type fakeTx struct {
	pgx.Tx
	execSQL    []string
	execErr    error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	t.execSQL = append(t.execSQL, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeDB struct {
	db
	tx       *fakeTx
	beginErr error
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return d.tx, nil
}

func testResult() *analysis.Result {
	return &analysis.Result{
		RunID: common.NewRunID(),
		Rows: []analysis.SummaryRow{
			{Gene: "X", Category: "cytokine", ConcentrationScore: 1, Log2FoldChange: 2.8, Cluster: "c1", PctExpressing: 1, PValue: 0.03},
			{Gene: "Y", Category: "effector", ConcentrationScore: 0.33, Log2FoldChange: 1.6, Cluster: "c1", PctExpressing: 0.75, PValue: 0.1},
		},
	}
}

func testMeta() RunMeta {
	return RunMeta{ConditionA: "stimulated", ConditionB: "control", GenesConfigured: 5}
}

func TestSaveResult_CommitsRunAndRows(t *testing.T) {
	tx := &fakeTx{}
	repo := NewSummaryRepository(&fakeDB{tx: tx}, logging.NewNopLogger(), nil)

	err := repo.SaveResult(context.Background(), testResult(), testMeta())
	require.NoError(t, err)
	assert.True(t, tx.committed)
	// One run insert plus one insert per row.
	assert.Len(t, tx.execSQL, 3)
	assert.Contains(t, tx.execSQL[0], "INSERT INTO analysis_runs")
	assert.Contains(t, tx.execSQL[1], "INSERT INTO summary_rows")
}

func TestSaveResult_RollsBackOnExecFailure(t *testing.T) {
	tx := &fakeTx{execErr: assert.AnError}
	repo := NewSummaryRepository(&fakeDB{tx: tx}, logging.NewNopLogger(), nil)

	err := repo.SaveResult(context.Background(), testResult(), testMeta())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestSaveResult_BeginFailure(t *testing.T) {
	repo := NewSummaryRepository(&fakeDB{beginErr: assert.AnError}, logging.NewNopLogger(), nil)

	err := repo.SaveResult(context.Background(), testResult(), testMeta())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
}

func TestSaveResult_NilResult(t *testing.T) {
	repo := NewSummaryRepository(&fakeDB{}, logging.NewNopLogger(), nil)
	err := repo.SaveResult(context.Background(), nil, testMeta())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}
