package volatility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stablewatch/models"
	"stablewatch/services/marketdata"
)

func seedVolatilityRow(t *testing.T, db *gorm.DB, asset models.Asset, date time.Time, c marketdata.Candle, mse *float64) {
	t.Helper()
	row := models.VolatilityData{
		AssetID: asset.ID, Symbol: asset.Symbol, Date: date,
		Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
		Volatility: 0.1, MSE: mse,
	}
	require.NoError(t, db.Create(&row).Error)
}

func TestBackfillMissingMSE_FillsOnlyNullRows(t *testing.T) {
	db := openTestDB(t)
	asset := seedAsset(t, db, "USDT")

	c := marketdata.Candle{Open: 1, High: 1.05, Low: 0.98, Close: 1.01}
	wrong := 42.0
	seedVolatilityRow(t, db, asset, day("2024-01-01"), c, nil)
	seedVolatilityRow(t, db, asset, day("2024-01-02"), c, &wrong)

	require.NoError(t, BackfillMissingMSE(db))

	var filled models.VolatilityData
	require.NoError(t, db.Where(`"assetId" = ? AND "date" = ?`, asset.ID, day("2024-01-01")).First(&filled).Error)
	require.NotNil(t, filled.MSE)
	// Matches the in-process estimator
	assert.InDelta(t, DailyMSE(c), *filled.MSE, 1e-9)

	// Rows that already have a value are left alone
	var untouched models.VolatilityData
	require.NoError(t, db.Where(`"assetId" = ? AND "date" = ?`, asset.ID, day("2024-01-02")).First(&untouched).Error)
	require.NotNil(t, untouched.MSE)
	assert.Equal(t, wrong, *untouched.MSE)
}

func TestBackfillMissingMSE_MultipleAssets(t *testing.T) {
	db := openTestDB(t)
	usdt := seedAsset(t, db, "USDT")
	dai := seedAsset(t, db, "DAI")

	c := marketdata.Candle{Open: 0.99, High: 1.01, Low: 0.98, Close: 1.0}
	seedVolatilityRow(t, db, usdt, day("2024-01-01"), c, nil)
	seedVolatilityRow(t, db, dai, day("2024-01-01"), c, nil)

	require.NoError(t, BackfillMissingMSE(db))

	var count int64
	require.NoError(t, db.Model(&models.VolatilityData{}).Where("mse IS NULL").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestBackfillMissingMSE_NoNullRowsIsNoop(t *testing.T) {
	db := openTestDB(t)
	asset := seedAsset(t, db, "USDT")

	existing := 0.25
	seedVolatilityRow(t, db, asset, day("2024-01-01"), marketdata.Candle{Open: 1, High: 1, Low: 1, Close: 1}, &existing)

	require.NoError(t, BackfillMissingMSE(db))

	var row models.VolatilityData
	require.NoError(t, db.First(&row).Error)
	require.NotNil(t, row.MSE)
	assert.Equal(t, existing, *row.MSE)
}

func TestForceRecomputeMSE_OverwritesEveryRow(t *testing.T) {
	db := openTestDB(t)
	asset := seedAsset(t, db, "USDC")

	c := marketdata.Candle{Open: 1, High: 1.05, Low: 0.98, Close: 1.01}
	wrong := 42.0
	seedVolatilityRow(t, db, asset, day("2024-01-01"), c, &wrong)
	seedVolatilityRow(t, db, asset, day("2024-01-02"), c, nil)

	require.NoError(t, ForceRecomputeMSE(db))

	var rows []models.VolatilityData
	require.NoError(t, db.Order(`"date"`).Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.MSE)
		assert.InDelta(t, DailyMSE(c), *row.MSE, 1e-9)
	}
}

func TestMaintenancePasses_AgreeOnValues(t *testing.T) {
	db := openTestDB(t)
	asset := seedAsset(t, db, "FDUSD")

	c := marketdata.Candle{Open: 0.997, High: 1.004, Low: 0.991, Close: 1.002}
	seedVolatilityRow(t, db, asset, day("2024-01-01"), c, nil)

	require.NoError(t, BackfillMissingMSE(db))
	var backfilled models.VolatilityData
	require.NoError(t, db.First(&backfilled).Error)
	require.NotNil(t, backfilled.MSE)
	bulkValue := *backfilled.MSE

	require.NoError(t, ForceRecomputeMSE(db))
	var forced models.VolatilityData
	require.NoError(t, db.First(&forced).Error)
	require.NotNil(t, forced.MSE)

	// The SQL bulk expression and the in-process estimator compute the
	// same metric
	assert.InDelta(t, bulkValue, *forced.MSE, 1e-12)
}
