package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db Querier
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db Querier) *ScanRepository {
	return &ScanRepository{db: db}
}

const (
	insertScanSQL = `
		INSERT INTO scans (user_id, created_at, scores, feedback, tips, image_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	listScansSQL = `
		SELECT id, user_id, created_at, scores, feedback, tips, image_ref
		FROM scans
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	deleteScanSQL     = `DELETE FROM scans WHERE user_id = $1 AND id = $2`
	deleteAllScansSQL = `DELETE FROM scans WHERE user_id = $1`
)

// Insert implements scan.Repository.
func (r *ScanRepository) Insert(ctx context.Context, n scan.NewScan) (scan.Record, error) {
	if err := n.Validate(); err != nil {
		return scan.Record{}, err
	}

	scores, feedback, tips, err := encodeScan(n)
	if err != nil {
		return scan.Record{}, shared.WrapError("scan_repo", "Insert", shared.ErrMalformedInput, "encode scan", err)
	}

	var id int64
	rec := n.Record(0)
	err = r.db.QueryRow(ctx, insertScanSQL,
		n.UserID, n.CreatedAt, scores, feedback, tips, n.ImageRef,
	).Scan(&id, &rec.CreatedAt)
	if err != nil {
		return scan.Record{}, storeError("scan_repo", "Insert", err)
	}
	rec.ID = id
	return rec, nil
}

// ListByUser implements scan.Repository.
func (r *ScanRepository) ListByUser(ctx context.Context, userID string) ([]scan.Record, error) {
	if err := shared.RequireUserID("scan_repo", "ListByUser", userID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, listScansSQL, userID)
	if err != nil {
		return nil, storeError("scan_repo", "ListByUser", err)
	}
	defer rows.Close()

	var out []scan.Record
	for rows.Next() {
		var (
			rec                    scan.Record
			scores, feedback, tips []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &scores, &feedback, &tips, &rec.ImageRef); err != nil {
			return nil, storeError("scan_repo", "ListByUser", err)
		}
		if err := decodeScan(&rec, scores, feedback, tips); err != nil {
			return nil, shared.WrapError("scan_repo", "ListByUser", shared.ErrMalformedInput,
				fmt.Sprintf("decode scan %d", rec.ID), err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan_repo", "ListByUser", err)
	}
	return out, nil
}

// Delete implements scan.Repository.
func (r *ScanRepository) Delete(ctx context.Context, userID string, id int64) error {
	if err := shared.RequireUserID("scan_repo", "Delete", userID); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, deleteScanSQL, userID, id)
	if err != nil {
		return storeError("scan_repo", "Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("scan_repo", "Delete", shared.ErrNotFound,
			fmt.Sprintf("scan %d not found", id))
	}
	return nil
}

// DeleteAllByUser implements scan.Repository.
func (r *ScanRepository) DeleteAllByUser(ctx context.Context, userID string) error {
	if err := shared.RequireUserID("scan_repo", "DeleteAllByUser", userID); err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, deleteAllScansSQL, userID); err != nil {
		return storeError("scan_repo", "DeleteAllByUser", err)
	}
	return nil
}

func encodeScan(n scan.NewScan) (scores, feedback, tips []byte, err error) {
	if scores, err = json.Marshal(n.Scores); err != nil {
		return nil, nil, nil, err
	}
	if feedback, err = json.Marshal(n.Feedback); err != nil {
		return nil, nil, nil, err
	}
	t := n.Tips
	if t == nil {
		t = []string{}
	}
	if tips, err = json.Marshal(t); err != nil {
		return nil, nil, nil, err
	}
	return scores, feedback, tips, nil
}

func decodeScan(rec *scan.Record, scores, feedback, tips []byte) error {
	if err := json.Unmarshal(scores, &rec.Scores); err != nil {
		return err
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &rec.Feedback); err != nil {
			return err
		}
	}
	if len(tips) > 0 {
		if err := json.Unmarshal(tips, &rec.Tips); err != nil {
			return err
		}
	}
	return nil
}
