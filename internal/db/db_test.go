package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var descriptorCols = []string{"erp_id", "name", "code", "barcode"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "erp_descriptors", descriptorCols, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"erp_descriptors"}, descriptorCols).WillReturnResult(2)

	rows := [][]any{
		{101, "Câble HDMI 2m", "PROD001", "3700123456789"},
		{102, "Souris sans fil", "PROD002", nil},
	}
	n, err := CopyFrom(context.Background(), mock, "erp_descriptors", descriptorCols, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"erp_descriptors"}, descriptorCols).
		WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{101, "x", "y", nil}}
	_, err = CopyFrom(context.Background(), mock, "erp_descriptors", descriptorCols, rows)
	assert.Error(t, err)
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "erp_descriptors",
		Columns:      descriptorCols,
		ConflictKeys: []string{"erp_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_MissingConfig(t *testing.T) {
	rows := [][]any{{101, "x", "y", nil}}

	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "erp_descriptors",
		ConflictKeys: []string{"erp_id"},
	}, rows)
	assert.Error(t, err)

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "erp_descriptors",
		Columns: descriptorCols,
	}, rows)
	assert.Error(t, err)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_erp_descriptors"}, descriptorCols).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	rows := [][]any{
		{101, "Câble HDMI 2m", "PROD001", "3700123456789"},
		{102, "Souris sans fil", "PROD002", nil},
	}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "erp_descriptors",
		Columns:      descriptorCols,
		ConflictKeys: []string{"erp_id"},
	}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
