package event

import (
	"time"

	"pixelswap/services/experiment"
)

type Type string

const (
	TypeImpression Type = "IMPRESSION"
	TypeAddToCart  Type = "ADD_TO_CART"
	TypePurchase   Type = "PURCHASE"
)

func (t Type) Valid() bool {
	switch t {
	case TypeImpression, TypeAddToCart, TypePurchase:
		return true
	}
	return false
}

const DayLayout = "2006-01-02"

// InteractionEvent is append-only and outlives the experiment it references.
type InteractionEvent struct {
	ID           string           `gorm:"column:id;primaryKey;size:32"`
	SessionID    string           `gorm:"column:session_id;size:128;index"`
	EventType    Type             `gorm:"column:event_type;size:16"`
	ProductID    string           `gorm:"column:product_id;size:64;index"`
	VariantID    *string          `gorm:"column:variant_id;size:64"`
	ExperimentID *string          `gorm:"column:experiment_id;size:32;index:idx_events_experiment_day,priority:1"`
	ObservedCase *experiment.Case `gorm:"column:observed_case;size:8"`
	EventDay     string           `gorm:"column:event_day;size:10;index:idx_events_experiment_day,priority:2"`
	DedupKey     *string          `gorm:"column:dedup_key;size:255;uniqueIndex"`
	Timestamp    time.Time        `gorm:"column:timestamp"`
	Revenue      *float64         `gorm:"column:revenue;type:decimal(18,4)"`
	Quantity     *int             `gorm:"column:quantity"`
	CreatedAt    time.Time        `gorm:"column:created_at"`
}

func (InteractionEvent) TableName() string { return "interaction_events" }

// ImpressionKey collapses repeated impressions of one session within a UTC
// day. Without an experiment the product id stands in.
func ImpressionKey(sessionID, experimentID, productID, day string) string {
	scope := experimentID
	if scope == "" {
		scope = "product:" + productID
	}
	return sessionID + "|" + scope + "|" + day
}
