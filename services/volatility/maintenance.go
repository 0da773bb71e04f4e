package volatility

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"stablewatch/models"
	"stablewatch/services/marketdata"
)

// assetGroup identifies one asset's slice of the volatility table
type assetGroup struct {
	AssetID uuid.UUID `gorm:"column:assetId"`
	Symbol  string    `gorm:"column:symbol"`
}

// BackfillMissingMSE recomputes the peg error metric for rows where it was
// never stored, from the OHLC already in the table. One bulk update per
// asset. Unlike the per-tick jobs, errors are returned to the caller: this
// is a manually invoked repair where silent partial failure is not
// acceptable.
func BackfillMissingMSE(db *gorm.DB) error {
	var groups []assetGroup
	if err := db.Model(&models.VolatilityData{}).
		Select(`DISTINCT "assetId", "symbol"`).
		Where("mse IS NULL").
		Find(&groups).Error; err != nil {
		return fmt.Errorf("failed to find assets with missing MSE: %w", err)
	}

	for _, g := range groups {
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Exec(`
				UPDATE "VolatilityData"
				SET mse = (("open" + "high" + "low" + "close") / 4.0 - ?) * (("open" + "high" + "low" + "close") / 4.0 - ?)
				WHERE "assetId" = ? AND mse IS NULL`,
				pegTarget, pegTarget, g.AssetID)
			if res.Error != nil {
				return res.Error
			}
			log.Printf("Updated MSE for %s (%d rows)", g.Symbol, res.RowsAffected)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to update MSE for %s: %w", g.Symbol, err)
		}
	}
	return nil
}

// ForceRecomputeMSE recomputes the peg error metric for every stored row of
// every asset, one update per row. Intentionally slower than the bulk
// backfill; meant for manual recovery when stored values are suspect.
func ForceRecomputeMSE(db *gorm.DB) error {
	var groups []assetGroup
	if err := db.Model(&models.VolatilityData{}).
		Select(`DISTINCT "assetId", "symbol"`).
		Find(&groups).Error; err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	for _, g := range groups {
		err := db.Transaction(func(tx *gorm.DB) error {
			var rows []models.VolatilityData
			if err := tx.Where(`"assetId" = ?`, g.AssetID).
				Order(`"date"`).
				Find(&rows).Error; err != nil {
				return err
			}

			for _, row := range rows {
				mse := DailyMSE(marketdata.Candle{
					Date:  row.Date,
					Open:  row.Open,
					High:  row.High,
					Low:   row.Low,
					Close: row.Close,
				})
				if err := tx.Model(&models.VolatilityData{}).
					Where(`"assetId" = ? AND "date" = ?`, row.AssetID, row.Date).
					Update("mse", mse).Error; err != nil {
					return err
				}
			}

			log.Printf("Force updated MSE for %s (%d rows)", g.Symbol, len(rows))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to force update MSE for %s: %w", g.Symbol, err)
		}
	}
	return nil
}
