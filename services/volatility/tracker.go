package volatility

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stablewatch/models"
	"stablewatch/services/marketdata"
)

const (
	// Lookback cap when an asset has no recorded history
	maxBackfillDays = 365
	// Pause between the two candle fetches for one asset
	defaultFetchPause = 1 * time.Second
	// Pause between assets to respect upstream rate limits
	defaultAssetPause = 2 * time.Second
)

// Tracker backfills daily volatility records for every asset with a known
// CoinGecko mapping.
type Tracker struct {
	db         *gorm.DB
	ohlc       *marketdata.OHLCClient
	fetchPause time.Duration
	assetPause time.Duration
	sleep      func(time.Duration)
}

// NewTracker creates a volatility tracker
func NewTracker(db *gorm.DB, ohlc *marketdata.OHLCClient) *Tracker {
	return &Tracker{
		db:         db,
		ohlc:       ohlc,
		fetchPause: defaultFetchPause,
		assetPause: defaultAssetPause,
		sleep:      time.Sleep,
	}
}

// Run executes one full tracking pass: backfill any missing error metrics,
// then process every mapped asset in randomized order. A single asset's
// failure is logged and never aborts the run.
func (t *Tracker) Run(ctx context.Context) {
	log.Println("Starting volatility tracking run")

	if err := BackfillMissingMSE(t.db); err != nil {
		log.Printf("Error updating MSE values: %v", err)
	}

	var assets []models.Asset
	if err := t.db.WithContext(ctx).Find(&assets).Error; err != nil {
		log.Printf("Failed to load assets: %v", err)
		return
	}

	// Randomized order spreads load so the same provider endpoint is not
	// hammered in a fixed sequence every run.
	rand.Shuffle(len(assets), func(i, j int) {
		assets[i], assets[j] = assets[j], assets[i]
	})

	for _, asset := range assets {
		if ctx.Err() != nil {
			log.Println("Volatility tracking run interrupted")
			return
		}
		if _, ok := marketdata.CoinID(asset.Symbol); !ok {
			log.Printf("No CoinGecko mapping for %s, skipping", asset.Symbol)
			continue
		}
		if err := t.ProcessAsset(ctx, asset); err != nil {
			log.Printf("Error processing %s: %v", asset.Symbol, err)
		}
		t.sleep(t.assetPause)
	}

	log.Println("Completed volatility tracking run")
}

// ProcessAsset backfills the missing volatility records for one asset. The
// write is one transaction; any error rolls it back and is returned to the
// caller.
func (t *Tracker) ProcessAsset(ctx context.Context, asset models.Asset) error {
	today := truncateToDay(time.Now())

	hasToday, err := t.hasRecordFor(ctx, asset.ID, today)
	if err != nil {
		return fmt.Errorf("failed to check today's data: %w", err)
	}
	if hasToday {
		log.Printf("Already have today's data for %s, skipping", asset.Symbol)
		return nil
	}

	lastDate, err := t.lastRecordedDate(ctx, asset.ID, today)
	if err != nil {
		return fmt.Errorf("failed to read last recorded date: %w", err)
	}

	// Narrower window first: it wins ties during the merge.
	var tables [][]marketdata.Candle
	recent, err := t.ohlc.FetchOHLC(ctx, asset.Symbol, "30")
	if err != nil {
		log.Printf("30-day fetch failed for %s: %v", asset.Symbol, err)
	} else {
		tables = append(tables, recent)
		t.sleep(t.fetchPause)
	}

	historical, err := t.ohlc.FetchOHLC(ctx, asset.Symbol, "365")
	if err != nil {
		log.Printf("365-day fetch failed for %s: %v", asset.Symbol, err)
	} else {
		tables = append(tables, historical)
		t.sleep(t.fetchPause)
	}

	merged := MergeCandles(tables...)
	if len(merged) == 0 {
		return fmt.Errorf("no candle data fetched for %s", asset.Symbol)
	}

	start := lastDate
	if floor := today.AddDate(0, 0, -maxBackfillDays); floor.After(start) {
		start = floor
	}

	existing, err := t.recordedDates(ctx, asset.ID, start, today)
	if err != nil {
		return fmt.Errorf("failed to read recorded dates: %w", err)
	}

	missing := MissingDates(existing, start, today)
	if len(missing) == 0 {
		log.Printf("No missing dates for %s", asset.Symbol)
		return nil
	}

	wanted := make(map[string]bool, len(missing))
	for _, d := range missing {
		wanted[d.Format(dateLayout)] = true
	}

	var rows []models.VolatilityData
	var newVols []float64
	for _, c := range merged {
		if !wanted[c.Date.Format(dateLayout)] {
			continue
		}
		vol, err := RogersSatchell(c)
		if err != nil {
			log.Printf("Skipping %s candle: %v", asset.Symbol, err)
			continue
		}
		mse := DailyMSE(c)
		rows = append(rows, models.VolatilityData{
			AssetID:    asset.ID,
			Symbol:     asset.Symbol,
			Date:       c.Date,
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			Volatility: vol,
			MSE:        &mse,
		})
		newVols = append(newVols, vol)
	}

	if len(rows) == 0 {
		log.Printf("No new candles for %s within missing dates", asset.Symbol)
		return nil
	}

	if err := t.storeRecords(ctx, asset, rows, newVols); err != nil {
		return err
	}

	log.Printf("Added %d new volatility records for %s", len(rows), asset.Symbol)
	return nil
}

// storeRecords inserts the new rows with conflict-skip and refreshes the
// asset's kurtosis, computed over the entire series (stored plus new) at
// write time.
func (t *Tracker) storeRecords(ctx context.Context, asset models.Asset, rows []models.VolatilityData, newVols []float64) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var storedVols []float64
		if err := tx.Model(&models.VolatilityData{}).
			Where(`"assetId" = ?`, asset.ID).
			Order(`"date"`).
			Pluck("volatility", &storedVols).Error; err != nil {
			return fmt.Errorf("failed to load stored volatility series: %w", err)
		}

		kurtosis := SeriesKurtosis(append(storedVols, newVols...))
		for i := range rows {
			rows[i].Kurtosis = kurtosis
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to store volatility rows: %w", err)
		}

		if len(storedVols) > 0 {
			if err := tx.Model(&models.VolatilityData{}).
				Where(`"assetId" = ?`, asset.ID).
				Update("kurtosis", kurtosis).Error; err != nil {
				return fmt.Errorf("failed to refresh kurtosis: %w", err)
			}
		}
		return nil
	})
}

// hasRecordFor reports whether a volatility row exists for the given day
func (t *Tracker) hasRecordFor(ctx context.Context, assetID uuid.UUID, day time.Time) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).Model(&models.VolatilityData{}).
		Where(`"assetId" = ? AND "date" = ?`, assetID, day).
		Count(&count).Error
	return count > 0, err
}

// lastRecordedDate returns the most recent stored date for an asset, or
// 365 days before today when the asset has no history yet.
func (t *Tracker) lastRecordedDate(ctx context.Context, assetID uuid.UUID, today time.Time) (time.Time, error) {
	var rec models.VolatilityData
	err := t.db.WithContext(ctx).
		Where(`"assetId" = ?`, assetID).
		Order(`"date" DESC`).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return today.AddDate(0, 0, -maxBackfillDays), nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return truncateToDay(rec.Date), nil
}

// recordedDates returns the stored dates for an asset within a range
func (t *Tracker) recordedDates(ctx context.Context, assetID uuid.UUID, start, end time.Time) ([]time.Time, error) {
	var recs []models.VolatilityData
	err := t.db.WithContext(ctx).
		Select(`"date"`).
		Where(`"assetId" = ? AND "date" BETWEEN ? AND ?`, assetID, start, end).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(recs))
	for _, r := range recs {
		dates = append(dates, truncateToDay(r.Date))
	}
	return dates, nil
}
