// Package postgres implements the PostgreSQL persistence layer for Run Community Hub.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/runhub/run-community-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH WRITER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBatchSize is the number of field updates committed per transaction.
const DefaultBatchSize = 500

// allowedBatchColumns guards the dynamically built SET clause. Only the
// reconciler's output fields are batch-writable.
var allowedBatchColumns = map[string]bool{
	"rank":      true,
	"points":    true,
	"owner_ref": true,
}

// BatchWriter implements shared.BatchWriter over chunked transactions.
// Each chunk commits independently: a failed chunk is recorded in the
// result and the remaining chunks still commit.
type BatchWriter struct {
	conn      *Connection
	chunkSize int
}

// NewBatchWriter creates a BatchWriter with the default chunk size.
func NewBatchWriter(conn *Connection) *BatchWriter {
	return &BatchWriter{conn: conn, chunkSize: DefaultBatchSize}
}

// NewBatchWriterWithChunkSize creates a BatchWriter with a custom chunk size.
func NewBatchWriterWithChunkSize(conn *Connection, size int) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchWriter{conn: conn, chunkSize: size}
}

// ApplyUpdates partitions updates into chunks and commits each chunk in its
// own transaction.
func (w *BatchWriter) ApplyUpdates(ctx context.Context, collection string, updates []shared.FieldUpdate) shared.BatchResult {
	result := shared.BatchResult{Attempted: len(updates)}
	if len(updates) == 0 {
		return result
	}

	for start := 0; start < len(updates); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(updates) {
			end = len(updates)
		}
		chunk := updates[start:end]

		if err := w.commitChunk(ctx, collection, chunk); err != nil {
			result.Errors = append(result.Errors,
				fmt.Errorf("chunk [%d:%d]: %w", start, end, err))
			continue
		}

		result.Committed += len(chunk)
	}

	return result
}

func (w *BatchWriter) commitChunk(ctx context.Context, collection string, chunk []shared.FieldUpdate) error {
	return w.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, u := range chunk {
			query, args, err := buildUpdateQuery(collection, u)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("update %s: %w", u.TargetID, err)
			}
		}
		return nil
	})
}

// buildUpdateQuery turns a FieldUpdate into a single UPDATE statement.
// Field names are sorted so the generated SQL is deterministic.
func buildUpdateQuery(collection string, u shared.FieldUpdate) (string, []interface{}, error) {
	if collection != shared.CollectionRuns && collection != shared.CollectionPlayers {
		return "", nil, fmt.Errorf("unknown collection %q", collection)
	}
	if len(u.Fields) == 0 {
		return "", nil, fmt.Errorf("empty field update for %s", u.TargetID)
	}

	names := make([]string, 0, len(u.Fields))
	for name := range u.Fields {
		if !allowedBatchColumns[name] {
			return "", nil, fmt.Errorf("field %q is not batch-writable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	setClauses := make([]string, 0, len(names)+1)
	args := make([]interface{}, 0, len(names)+1)
	for i, name := range names {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", name, i+1))
		args = append(args, u.Fields[name]) // nil writes NULL, clearing the field
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, u.TargetID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		collection, strings.Join(setClauses, ", "), len(args))

	return query, args, nil
}
