package postgres

import (
	"context"
	"encoding/json"

	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// AchievementRepository implements achievement.Repository using PostgreSQL.
type AchievementRepository struct {
	db Querier
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(db Querier) *AchievementRepository {
	return &AchievementRepository{db: db}
}

const (
	insertAchievementSQL = `
		INSERT INTO achievements (id, user_id, achievement_type, unlocked_at, metadata)
		VALUES ($1::text::uuid, $2, $3, $4, $5)
		ON CONFLICT (user_id, achievement_type) DO NOTHING`

	listAchievementsSQL = `
		SELECT id::text, user_id, achievement_type, unlocked_at, metadata
		FROM achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC`
)

// Insert implements achievement.Repository. A conflicting (user, type) row
// is left untouched and reported as ErrAlreadyExists.
func (r *AchievementRepository) Insert(ctx context.Context, rec achievement.Record) error {
	if err := shared.RequireUserID("achievement_repo", "Insert", rec.UserID); err != nil {
		return err
	}
	if !rec.Type.Valid() {
		return shared.NewDomainError("achievement_repo", "Insert", shared.ErrMalformedInput,
			"invalid achievement type")
	}

	metadata, err := json.Marshal(orEmpty(rec.Metadata))
	if err != nil {
		return shared.WrapError("achievement_repo", "Insert", shared.ErrMalformedInput, "encode metadata", err)
	}

	tag, err := r.db.Exec(ctx, insertAchievementSQL,
		rec.ID, rec.UserID, rec.Type.String(), rec.UnlockedAt, metadata,
	)
	if err != nil {
		return storeError("achievement_repo", "Insert", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("achievement_repo", "Insert", shared.ErrAlreadyExists,
			rec.Type.String()+" already unlocked")
	}
	return nil
}

// ListByUser implements achievement.Repository. Rows with a type this build
// does not know are skipped.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]achievement.Record, error) {
	if err := shared.RequireUserID("achievement_repo", "ListByUser", userID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, listAchievementsSQL, userID)
	if err != nil {
		return nil, storeError("achievement_repo", "ListByUser", err)
	}
	defer rows.Close()

	var out []achievement.Record
	for rows.Next() {
		var (
			rec      achievement.Record
			typ      string
			metadata []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &typ, &rec.UnlockedAt, &metadata); err != nil {
			return nil, storeError("achievement_repo", "ListByUser", err)
		}
		t, err := achievement.ParseType(typ)
		if err != nil {
			continue
		}
		rec.Type = t
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, shared.WrapError("achievement_repo", "ListByUser", shared.ErrMalformedInput,
					"decode metadata", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("achievement_repo", "ListByUser", err)
	}
	return out, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
