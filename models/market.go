package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Asset represents a tracked stablecoin. The Asset table is owned by another
// service; this backend only reads it.
type Asset struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Symbol string    `gorm:"column:symbol;uniqueIndex;not null" json:"symbol"`
}

func (Asset) TableName() string { return "Asset" }

// PriceData represents one spot price observation. Append-only, one row per
// poll tick.
type PriceData struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AssetID   uuid.UUID       `gorm:"column:assetId;type:uuid;index" json:"asset_id"`
	Asset     Asset           `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	PriceUSD  decimal.Decimal `gorm:"column:priceUSD;type:decimal(20,8)" json:"price_usd"`
	PriceDate time.Time       `gorm:"column:priceDate" json:"price_date"`
}

func (PriceData) TableName() string { return "PriceData" }

// VolatilityData holds one day's OHLC candle and the derived statistics for
// an asset. Primary key is (assetId, date), so re-inserting the same day is
// a no-op under conflict-skip.
//
// Kurtosis is a property of the asset's whole volatility series at write
// time, not of the individual row; it is overwritten for every row of an
// asset whenever new rows are appended. MSE is nullable so the maintenance
// pass can find rows that were stored before the metric existed.
type VolatilityData struct {
	AssetID    uuid.UUID `gorm:"column:assetId;type:uuid;primaryKey" json:"asset_id"`
	Symbol     string    `gorm:"column:symbol" json:"symbol"`
	Date       time.Time `gorm:"column:date;type:date;primaryKey" json:"date"`
	Open       float64   `gorm:"column:open" json:"open"`
	High       float64   `gorm:"column:high" json:"high"`
	Low        float64   `gorm:"column:low" json:"low"`
	Close      float64   `gorm:"column:close" json:"close"`
	Volatility float64   `gorm:"column:volatility" json:"volatility"`
	Kurtosis   *float64  `gorm:"column:kurtosis" json:"kurtosis"`
	MSE        *float64  `gorm:"column:mse" json:"mse"`
}

func (VolatilityData) TableName() string { return "VolatilityData" }

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Asset{},
		&PriceData{},
		&VolatilityData{},
	)
}
