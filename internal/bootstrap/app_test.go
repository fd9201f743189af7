package bootstrap

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"docparse-backend/internal/shared/config"
)

func TestBuildClosesDatabaseWhenStoreFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectClose()

	orig := openDB
	openDB = func(context.Context, config.Config) (*sql.DB, error) { return sqlDB, nil }
	t.Cleanup(func() { openDB = orig })

	_, err = Build(context.Background(), config.Config{Env: "production", ObjectStoreType: "s3"})
	if err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("database pool was not closed: %v", err)
	}
}
