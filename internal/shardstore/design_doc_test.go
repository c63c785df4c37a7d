// internal/shardstore/design_doc_test.go
//
// Unit-tests for design_doc helpers using sqlmock.

package shardstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

func TestByDocKey(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, "mysql")

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT db_name, ddoc_id, rev, body, updated_at
	    FROM   design_document
	    WHERE  db_name = ? AND ddoc_id = ?`,
	)).
		WithArgs("accounts", "views").
		WillReturnRows(sqlmock.NewRows([]string{"db_name", "ddoc_id", "rev", "body", "updated_at"}).
			AddRow("accounts", "views", "3-abc", []byte(`{"language":"javascript"}`), now))

	doc, err := byDocKey(context.Background(), db, DocKey{DBName: "accounts", DDocID: "views"})
	if err != nil {
		t.Fatalf("byDocKey error: %v", err)
	}
	if doc.Rev != "3-abc" {
		t.Fatalf("unexpected rev: %q", doc.Rev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestByDocKey_NoDDocIDMapsToEmptyString(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, "mysql")

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT db_name, ddoc_id, rev, body, updated_at
	    FROM   design_document
	    WHERE  db_name = ? AND ddoc_id = ?`,
	)).
		WithArgs("accounts", "").
		WillReturnRows(sqlmock.NewRows([]string{"db_name", "ddoc_id", "rev", "body", "updated_at"}).
			AddRow("accounts", "", "1-xyz", []byte(`{}`), now))

	doc, err := byDocKey(context.Background(), db, DocKey{DBName: "accounts", DDocID: ddoccache.NoDDocID})
	if err != nil {
		t.Fatalf("byDocKey error: %v", err)
	}
	if doc.DDocID != "" {
		t.Fatalf("expected empty ddoc_id row, got %q", doc.DDocID)
	}
}
