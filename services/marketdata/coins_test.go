package marketdata

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stablewatch/models"
)

func TestCoinID_KnownAndUnknown(t *testing.T) {
	id, ok := CoinID("USDT")
	assert.True(t, ok)
	assert.Equal(t, "tether", id)

	_, ok = CoinID("DOGE")
	assert.False(t, ok)
}

func TestValidateCoinIDs(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Asset{}))

	require.NoError(t, db.Create(&models.Asset{ID: uuid.New(), Symbol: "USDT"}).Error)
	require.NoError(t, db.Create(&models.Asset{ID: uuid.New(), Symbol: "UNMAPPED"}).Error)

	// Unmapped assets are logged, not fatal
	assert.NoError(t, ValidateCoinIDs(db))
}
