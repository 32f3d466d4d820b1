package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
)

// Ensure LedgerStore implements the interface.
var _ driven.LedgerStore = (*LedgerStore)(nil)

// LedgerStore implements the Status Ledger on SQLite. Advance runs the
// compare-and-swap and the audit append in one transaction, so the
// trail never diverges from the record.
type LedgerStore struct {
	store *Store
}

// Upsert creates the record for an item or returns the existing one.
func (l *LedgerStore) Upsert(ctx context.Context, item *domain.ContentItem) (*domain.ProcessingRecord, error) {
	if item == nil || item.ID == "" {
		return nil, domain.ErrInvalidInput
	}

	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO processing_records (item_id, stage, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO NOTHING
	`, item.ID, string(domain.StageIngested), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upserting record: %w", err)
	}

	return l.Get(ctx, item.ID)
}

// Advance performs the compare-and-swap stage transition and appends
// the audit entry.
func (l *LedgerStore) Advance(ctx context.Context, itemID string, fromStage, toStage domain.Stage, actor string) (*domain.ProcessingRecord, error) {
	if !domain.CanAdvance(fromStage, toStage) {
		return nil, domain.ErrIllegalTransition
	}

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning advance tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		UPDATE processing_records
		SET stage = ?, retry_count = 0, updated_at = ?
		WHERE item_id = ? AND stage = ?
	`, string(toStage), time.Now().UTC().Format(time.RFC3339), itemID, string(fromStage))
	if err != nil {
		return nil, fmt.Errorf("advancing record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking advance result: %w", err)
	}
	if affected == 0 {
		// Either the record does not exist or another actor advanced it.
		var exists int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM processing_records WHERE item_id = ?", itemID)
		if err := row.Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking record existence: %w", err)
		}
		if exists == 0 {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrStaleState
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, item_id, seq, from_stage, to_stage, actor, at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log WHERE item_id = ?), ?, ?, ?, ?)
	`, ulid.Make().String(), itemID, itemID,
		string(fromStage), string(toStage), actor, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("appending audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing advance: %w", err)
	}

	return l.Get(ctx, itemID)
}

// RecordFailure moves the record to StageFailed. The stage guard keeps
// a stale actor from regressing a record another actor already closed.
func (l *LedgerStore) RecordFailure(ctx context.Context, itemID string, stage domain.Stage, failure error) error {
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}

	res, err := l.store.db.ExecContext(ctx, `
		UPDATE processing_records
		SET stage = ?, failed_stage = ?, last_error = ?, updated_at = ?
		WHERE item_id = ? AND stage NOT IN (?, ?, ?, ?)
	`, string(domain.StageFailed), string(stage), msg,
		time.Now().UTC().Format(time.RFC3339), itemID,
		string(domain.StageClosedMerged), string(domain.StageClosedRejected),
		string(domain.StageClosedSuperseded), string(domain.StageFailed))
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking failure result: %w", err)
	}
	if affected == 0 {
		var exists int
		row := l.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processing_records WHERE item_id = ?", itemID)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("checking record existence: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrStaleState
	}
	return nil
}

// SetRetryCount updates the transient retry counter.
func (l *LedgerStore) SetRetryCount(ctx context.Context, itemID string, count int) error {
	res, err := l.store.db.ExecContext(ctx, `
		UPDATE processing_records SET retry_count = ? WHERE item_id = ?
	`, count, itemID)
	if err != nil {
		return fmt.Errorf("setting retry count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking retry update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddProposal records a change proposal produced for an item.
func (l *LedgerStore) AddProposal(ctx context.Context, itemID, proposalID string) error {
	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO record_proposals (item_id, proposal_id)
		VALUES (?, ?)
		ON CONFLICT(item_id, proposal_id) DO NOTHING
	`, itemID, proposalID)
	if err != nil {
		return fmt.Errorf("adding proposal: %w", err)
	}
	return nil
}

// MarkSuperseded flags a proposal as replaced by an escalated rebuild.
// The row is created if an earlier run never recorded the proposal.
func (l *LedgerStore) MarkSuperseded(ctx context.Context, itemID, proposalID string) error {
	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO record_proposals (item_id, proposal_id, superseded)
		VALUES (?, ?, 1)
		ON CONFLICT(item_id, proposal_id) DO UPDATE SET superseded = 1
	`, itemID, proposalID)
	if err != nil {
		return fmt.Errorf("marking proposal superseded: %w", err)
	}
	return nil
}

// Get retrieves a record.
func (l *LedgerStore) Get(ctx context.Context, itemID string) (*domain.ProcessingRecord, error) {
	row := l.store.db.QueryRowContext(ctx, `
		SELECT item_id, stage, failed_stage, last_error, retry_count, updated_at
		FROM processing_records WHERE item_id = ?
	`, itemID)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	rec.ProposalIDs, rec.SupersededIDs, err = l.proposalIDs(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns all records.
func (l *LedgerStore) List(ctx context.Context) ([]domain.ProcessingRecord, error) {
	return l.queryRecords(ctx, `
		SELECT item_id, stage, failed_stage, last_error, retry_count, updated_at
		FROM processing_records ORDER BY updated_at
	`)
}

// ListByStage returns records currently at a stage.
func (l *LedgerStore) ListByStage(ctx context.Context, stage domain.Stage) ([]domain.ProcessingRecord, error) {
	return l.queryRecords(ctx, `
		SELECT item_id, stage, failed_stage, last_error, retry_count, updated_at
		FROM processing_records WHERE stage = ? ORDER BY updated_at
	`, string(stage))
}

// AuditTrail returns an item's audit entries in sequence order.
func (l *LedgerStore) AuditTrail(ctx context.Context, itemID string) ([]domain.AuditEntry, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT id, item_id, seq, from_stage, to_stage, actor, at
		FROM audit_log WHERE item_id = ? ORDER BY seq
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var from, to, at string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Seq, &from, &to, &e.Actor, &at); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.FromStage = domain.Stage(from)
		e.ToStage = domain.Stage(to)
		e.At, _ = time.Parse(time.RFC3339, at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}

func (l *LedgerStore) queryRecords(ctx context.Context, query string, args ...any) ([]domain.ProcessingRecord, error) {
	rows, err := l.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []domain.ProcessingRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		rec.ProposalIDs, rec.SupersededIDs, err = l.proposalIDs(ctx, rec.ItemID)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func (l *LedgerStore) proposalIDs(ctx context.Context, itemID string) (ids, superseded []string, err error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT proposal_id, superseded FROM record_proposals WHERE item_id = ? ORDER BY proposal_id
	`, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying proposals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var flag int
		if err := rows.Scan(&id, &flag); err != nil {
			return nil, nil, fmt.Errorf("scanning proposal id: %w", err)
		}
		ids = append(ids, id)
		if flag != 0 {
			superseded = append(superseded, id)
		}
	}
	return ids, superseded, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for record scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.ProcessingRecord, error) {
	var rec domain.ProcessingRecord
	var stage, failedStage, updatedAt string

	err := s.Scan(&rec.ItemID, &stage, &failedStage, &rec.LastError, &rec.RetryCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.Stage = domain.Stage(stage)
	rec.FailedStage = domain.Stage(failedStage)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}
