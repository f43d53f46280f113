package experiment

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository describes database operations available for experiments.
type Repository interface {
	Create(ctx context.Context, exp *Experiment) error
	GetByID(ctx context.Context, id string) (*Experiment, error)
	GetByProduct(ctx context.Context, productID string) (*Experiment, error)
	ListDue(ctx context.Context, now time.Time) ([]Experiment, error)
	// Claim moves next_rotation_at from prev to next in a single conditional
	// write. It reports false when another writer got there first.
	Claim(ctx context.Context, id string, status Status, prev, next *time.Time, now time.Time) (bool, error)
	// SaveTransition persists status, case and schedule, conditional on the
	// row still holding the claimed next_rotation_at.
	SaveTransition(ctx context.Context, exp Experiment, claimed *time.Time) error
	MarkAttention(ctx context.Context, id, reason string) error
	SetHeroFailed(ctx context.Context, experimentID string, variantIDs []string, failed bool) error
	UpsertMediaAssets(ctx context.Context, assets []MediaAsset) error
	MediaURLs(ctx context.Context, mediaIDs []string) (map[string]string, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func whereNext(tx *gorm.DB, v *time.Time) *gorm.DB {
	if v == nil {
		return tx.Where("next_rotation_at IS NULL")
	}
	return tx.Where("next_rotation_at = ?", *v)
}

func (r *gormRepository) Create(ctx context.Context, exp *Experiment) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(exp).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id string) (*Experiment, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var exp Experiment
	err := r.db.WithContext(ctx).
		Preload("Overrides", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		Where("id = ?", id).
		First(&exp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

func (r *gormRepository) GetByProduct(ctx context.Context, productID string) (*Experiment, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var exp Experiment
	err := r.db.WithContext(ctx).
		Preload("Overrides", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		Where("product_id = ?", productID).
		First(&exp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

func (r *gormRepository) ListDue(ctx context.Context, now time.Time) ([]Experiment, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var exps []Experiment
	err := r.db.WithContext(ctx).
		Preload("Overrides", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		Where("status = ? AND next_rotation_at IS NOT NULL AND next_rotation_at <= ?", StatusActive, normalize(now)).
		Order("next_rotation_at ASC").Order("id ASC").
		Find(&exps).Error
	if err != nil {
		return nil, err
	}
	return exps, nil
}

func (r *gormRepository) Claim(ctx context.Context, id string, status Status, prev, next *time.Time, now time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	tx := r.db.WithContext(ctx).Model(&Experiment{}).
		Where("id = ? AND status = ?", id, status)
	res := whereNext(tx, prev).
		Updates(map[string]any{
			"next_rotation_at": next,
			"updated_at":       normalize(now),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) SaveTransition(ctx context.Context, exp Experiment, claimed *time.Time) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	tx := r.db.WithContext(ctx).Model(&Experiment{}).Where("id = ?", exp.ID)
	res := whereNext(tx, claimed).
		Updates(map[string]any{
			"status":           exp.Status,
			"current_case":     exp.CurrentCase,
			"last_rotated_at":  exp.LastRotatedAt,
			"next_rotation_at": exp.NextRotationAt,
			"needs_attention":  exp.NeedsAttention,
			"attention_reason": exp.AttentionReason,
			"updated_at":       normalize(time.Now()),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *gormRepository) MarkAttention(ctx context.Context, id, reason string) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Experiment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"needs_attention":  true,
			"attention_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) SetHeroFailed(ctx context.Context, experimentID string, variantIDs []string, failed bool) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	if len(variantIDs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Model(&VariantOverride{}).
		Where("experiment_id = ? AND variant_id IN ?", experimentID, variantIDs).
		Update("hero_failed", failed).Error
}

func (r *gormRepository) UpsertMediaAssets(ctx context.Context, assets []MediaAsset) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	if len(assets) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "media_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"product_id", "url", "updated_at"}),
		}).
		Create(&assets).Error
}

func (r *gormRepository) MediaURLs(ctx context.Context, mediaIDs []string) (map[string]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	out := make(map[string]string, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}

	var assets []MediaAsset
	if err := r.db.WithContext(ctx).
		Where("media_id IN ?", mediaIDs).
		Find(&assets).Error; err != nil {
		return nil, err
	}
	for _, a := range assets {
		out[a.MediaID] = a.URL
	}
	return out, nil
}
