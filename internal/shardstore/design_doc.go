// internal/shardstore/design_doc.go
//
// `design_document` table row model and recovery query.
//
// Context
// -------
// Every shard holds one `design_document` table keyed by (db_name, ddoc_id):
//
//	CREATE TABLE design_document (
//	    db_name     VARCHAR(255) NOT NULL,
//	    ddoc_id     VARCHAR(255) NOT NULL,
//	    rev         VARCHAR(64)  NOT NULL,
//	    body        JSON         NOT NULL,
//	    updated_at  TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    PRIMARY KEY (db_name, ddoc_id)
//	);
//
// DocKey.DDocID may be ddoccache.NoDDocID, meaning "the database's default
// design document" — the row whose ddoc_id column is the literal empty
// string, the shard-side convention for a database with no named ddocs.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package shardstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

// DesignDocument mirrors one row in the `design_document` table.
type DesignDocument struct {
	DBName    string    `db:"db_name"`
	DDocID    string    `db:"ddoc_id"`
	Rev       string    `db:"rev"`
	Body      []byte    `db:"body"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DocKey is the Arg type carried by every ddoccache.Key this store
// registers under the "ddoc" tag.  Comparable, so it is safe as a Key.Arg
// and therefore as a cache map key.
type DocKey struct {
	DBName string
	DDocID string
}

// byDocKey loads a single design_document row.  ddoccache.NoDDocID maps to
// the empty-string ddoc_id row, per the shard's database-default
// convention.
func byDocKey(ctx context.Context, db *sqlx.DB, key DocKey) (*DesignDocument, error) {
	ddocID := key.DDocID
	if ddocID == ddoccache.NoDDocID {
		ddocID = ""
	}

	const q = `
	    SELECT db_name, ddoc_id, rev, body, updated_at
	    FROM   design_document
	    WHERE  db_name = ? AND ddoc_id = ?`

	var doc DesignDocument
	if err := db.GetContext(ctx, &doc, q, key.DBName, ddocID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("shardstore: no design document %s/%s: %w", key.DBName, key.DDocID, err)
		}
		return nil, err
	}
	return &doc, nil
}
