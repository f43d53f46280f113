package experiment

import (
	"time"

	"gorm.io/datatypes"
)

type Case string

const (
	CaseBase Case = "BASE"
	CaseTest Case = "TEST"
)

func (c Case) Valid() bool { return c == CaseBase || c == CaseTest }

// Other returns the complementary case.
func (c Case) Other() Case {
	if c == CaseTest {
		return CaseBase
	}
	return CaseTest
}

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)

// Experiment is the BASE/TEST rotation configuration of a single product.
type Experiment struct {
	ID                      string                      `gorm:"column:id;primaryKey;size:32" json:"id"`
	ProductID               string                      `gorm:"column:product_id;size:64;uniqueIndex" json:"productId"`
	Status                  Status                      `gorm:"column:status;size:16;index:idx_experiments_due,priority:1" json:"status"`
	CurrentCase             Case                        `gorm:"column:current_case;size:8" json:"currentCase"`
	RotationIntervalSeconds int64                       `gorm:"column:rotation_interval_seconds" json:"rotationIntervalSeconds"`
	LastRotatedAt           *time.Time                  `gorm:"column:last_rotated_at" json:"lastRotatedAt,omitempty"`
	NextRotationAt          *time.Time                  `gorm:"column:next_rotation_at;index:idx_experiments_due,priority:2" json:"nextRotationAt,omitempty"`
	BaseMedia               datatypes.JSONSlice[string] `gorm:"column:base_media" json:"baseMedia"`
	TestMedia               datatypes.JSONSlice[string] `gorm:"column:test_media" json:"testMedia"`
	VariantScoped           bool                        `gorm:"column:variant_scoped" json:"variantScoped"`
	NeedsAttention          bool                        `gorm:"column:needs_attention" json:"needsAttention"`
	AttentionReason         string                      `gorm:"column:attention_reason" json:"attentionReason,omitempty"`
	Overrides               []VariantOverride           `gorm:"foreignKey:ExperimentID;constraint:OnDelete:CASCADE" json:"overrides,omitempty"`
	CreatedAt               time.Time                   `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt               time.Time                   `gorm:"column:updated_at" json:"updatedAt"`
}

func (Experiment) TableName() string { return "experiments" }

func (e Experiment) Interval() time.Duration {
	return time.Duration(e.RotationIntervalSeconds) * time.Second
}

// MediaFor returns the ordered gallery of the given case.
func (e Experiment) MediaFor(c Case) []string {
	if c == CaseTest {
		return e.TestMedia
	}
	return e.BaseMedia
}

// HeroesFor maps variant id to the hero media of the given case.
func (e Experiment) HeroesFor(c Case) map[string]string {
	heroes := make(map[string]string, len(e.Overrides))
	for _, o := range e.Overrides {
		if m := o.HeroFor(c); m != "" {
			heroes[o.VariantID] = m
		}
	}
	return heroes
}

// VariantOverride swaps one product variant's hero image alongside the gallery.
type VariantOverride struct {
	ID            uint   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ExperimentID  string `gorm:"column:experiment_id;size:32;uniqueIndex:idx_override_variant,priority:1" json:"-"`
	VariantID     string `gorm:"column:variant_id;size:64;uniqueIndex:idx_override_variant,priority:2" json:"variantId"`
	BaseHeroMedia string `gorm:"column:base_hero_media" json:"baseHeroMedia"`
	TestHeroMedia string `gorm:"column:test_hero_media" json:"testHeroMedia"`
	// HeroFailed is set when the last hero assignment failed and is retried
	// on the next rotation window.
	HeroFailed bool      `gorm:"column:hero_failed" json:"heroFailed"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"-"`
}

func (VariantOverride) TableName() string { return "variant_overrides" }

func (o VariantOverride) HeroFor(c Case) string {
	if c == CaseTest {
		return o.TestHeroMedia
	}
	return o.BaseHeroMedia
}

// MediaAsset records the public URL of an uploaded catalog media id.
type MediaAsset struct {
	MediaID   string    `gorm:"column:media_id;primaryKey;size:64"`
	ProductID string    `gorm:"column:product_id;size:64;index"`
	URL       string    `gorm:"column:url"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MediaAsset) TableName() string { return "media_assets" }

// Models lists every table owned by this package, for migrations.
func Models() []any {
	return []any{&Experiment{}, &VariantOverride{}, &MediaAsset{}}
}
