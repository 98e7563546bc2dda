package blobs

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func blobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "content_hash", "object_key", "size", "ref_count",
		"scan_status", "scan_result", "scanned_at", "mime_type", "is_encrypted",
	})
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+storage_files\b`

	mock.ExpectExec(q).
		WithArgs("b1", "hash1", "blobs/hash1", int64(11), int64(1),
			nil, nil, nil, nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Blob{
		ID:          "b1",
		ContentHash: "hash1",
		ObjectKey:   "blobs/hash1",
		Size:        11,
		RefCount:    1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DuplicateHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+storage_files`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.Blob{ID: "b1", ContentHash: "hash1"})
	if !errors.Is(err, common.ErrDuplicateContent) {
		t.Fatalf("want ErrDuplicateContent, got %v", err)
	}
}

func TestGetByHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM storage_files WHERE content_hash = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByHash(context.Background(), "nope")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestIncrementRefByHash_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE storage_files SET ref_count = ref_count \+ 1 WHERE content_hash = \$1 RETURNING id`).
		WithArgs("hash1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))

	id, err := repo.IncrementRefByHash(context.Background(), "hash1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "b1" {
		t.Fatalf("want b1, got %s", id)
	}
}

func TestIncrementRefByHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE storage_files SET ref_count = ref_count \+ 1`).
		WithArgs("hash1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.IncrementRefByHash(context.Background(), "hash1")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestDecrementRef_ReturnsUpdatedRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE storage_files SET ref_count = ref_count - 1 WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(blobRows().AddRow("b1", "hash1", "blobs/hash1", int64(11), int64(0),
			nil, nil, nil, nil, false))

	b, err := repo.DecrementRef(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.RefCount != 0 {
		t.Fatalf("want ref_count 0, got %d", b.RefCount)
	}
	if b.ObjectKey != "blobs/hash1" {
		t.Fatalf("want object key, got %s", b.ObjectKey)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM storage_files WHERE id = \$1`).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "gone")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestUpdateScanState_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	threat := "Eicar-Test-Signature"
	mock.ExpectExec(`UPDATE storage_files SET scan_status = \$2, scan_result = \$3`).
		WithArgs("b1", models.ScanStatusInfected, &threat).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateScanState(context.Background(), "b1", models.ScanStatusInfected, &threat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
