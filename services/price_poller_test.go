package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stablewatch/models"
	"stablewatch/services/marketdata"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateMarketModels(db))
	return db
}

func newQuoteServer(t *testing.T, price string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		fmt.Fprintf(w, `{"data":{%q:[{"quote":{"USD":{"price":%s}}}]}}`, symbol, price)
	}))
}

func TestPollOnce_StoresOnePriceRow(t *testing.T) {
	db := openTestDB(t)
	server := newQuoteServer(t, "1.0003")
	defer server.Close()

	asset := models.Asset{ID: uuid.New(), Symbol: "USDT"}
	require.NoError(t, db.Create(&asset).Error)

	quotes := marketdata.NewQuoteClient("test-key")
	quotes.BaseURL = server.URL
	poller := NewPricePoller(db, quotes, "USDT", time.Minute)

	require.NoError(t, poller.PollOnce(context.Background()))

	var rows []models.PriceData
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, asset.ID, rows[0].AssetID)
	assert.True(t, rows[0].PriceUSD.Equal(decimal.NewFromFloat(1.0003)))
	assert.False(t, rows[0].PriceDate.IsZero())
}

func TestPollOnce_EveryTickAppends(t *testing.T) {
	db := openTestDB(t)
	server := newQuoteServer(t, "0.9998")
	defer server.Close()

	require.NoError(t, db.Create(&models.Asset{ID: uuid.New(), Symbol: "USDT"}).Error)

	quotes := marketdata.NewQuoteClient("test-key")
	quotes.BaseURL = server.URL
	poller := NewPricePoller(db, quotes, "USDT", time.Minute)

	require.NoError(t, poller.PollOnce(context.Background()))
	require.NoError(t, poller.PollOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.PriceData{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestPollOnce_UnknownAssetFails(t *testing.T) {
	db := openTestDB(t)
	server := newQuoteServer(t, "1.0")
	defer server.Close()

	quotes := marketdata.NewQuoteClient("test-key")
	quotes.BaseURL = server.URL
	poller := NewPricePoller(db, quotes, "USDT", time.Minute)

	assert.Error(t, poller.PollOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.PriceData{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	db := openTestDB(t)
	server := newQuoteServer(t, "1.0")
	defer server.Close()

	require.NoError(t, db.Create(&models.Asset{ID: uuid.New(), Symbol: "USDT"}).Error)

	quotes := marketdata.NewQuoteClient("test-key")
	quotes.BaseURL = server.URL
	poller := NewPricePoller(db, quotes, "USDT", 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}

func TestRun_SurvivesFailingTicks(t *testing.T) {
	db := openTestDB(t)

	// Server that always errors: every tick fails but the loop keeps going
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	quotes := marketdata.NewQuoteClient("test-key")
	quotes.BaseURL = server.URL
	poller := NewPricePoller(db, quotes, "USDT", 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller crashed or hung on repeated failures")
	}
}
