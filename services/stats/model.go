package stats

import "pixelswap/services/experiment"

// DailyStatistic is one rollup row. VariantID is empty for the
// experiment-wide row.
type DailyStatistic struct {
	ExperimentID string          `gorm:"column:experiment_id;primaryKey;size:32" json:"experimentId"`
	VariantID    string          `gorm:"column:variant_id;primaryKey;size:64" json:"variantId"`
	Date         string          `gorm:"column:date;primaryKey;size:10" json:"date"`
	Case         experiment.Case `gorm:"column:observed_case;primaryKey;size:8" json:"case"`
	Impressions  int64           `gorm:"column:impressions" json:"impressions"`
	AddToCarts   int64           `gorm:"column:add_to_carts" json:"addToCarts"`
	Purchases    int64           `gorm:"column:purchases" json:"purchases"`
	Revenue      float64         `gorm:"column:revenue;type:decimal(18,4)" json:"revenue"`
	Quantity     int64           `gorm:"column:quantity" json:"quantity"`
}

func (DailyStatistic) TableName() string { return "daily_statistics" }

// CTR is add-to-cart over impressions, 0 when nothing was shown.
func (s DailyStatistic) CTR() float64 {
	if s.Impressions == 0 {
		return 0
	}
	return float64(s.AddToCarts) / float64(s.Impressions)
}

type Row struct {
	DailyStatistic
	CTR float64 `json:"ctr"`
}

func toRows(in []DailyStatistic) []Row {
	out := make([]Row, 0, len(in))
	for _, s := range in {
		out = append(out, Row{DailyStatistic: s, CTR: s.CTR()})
	}
	return out
}
