package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"stablewatch/models"
	"stablewatch/services/marketdata"
)

// PricePoller periodically fetches one symbol's spot price and appends it
// to the PriceData table. A failed tick is logged and the loop keeps
// running; only context cancellation stops it.
type PricePoller struct {
	db       *gorm.DB
	quotes   *marketdata.QuoteClient
	symbol   string
	interval time.Duration
}

// NewPricePoller creates a price poller for one symbol
func NewPricePoller(db *gorm.DB, quotes *marketdata.QuoteClient, symbol string, interval time.Duration) *PricePoller {
	return &PricePoller{
		db:       db,
		quotes:   quotes,
		symbol:   symbol,
		interval: interval,
	}
}

// Run polls until the context is cancelled. The interval is measured from
// the end of the previous iteration, not aligned to the wall clock.
func (p *PricePoller) Run(ctx context.Context) {
	log.Printf("Starting price poller for %s with %s interval", p.symbol, p.interval)

	for {
		if err := p.PollOnce(ctx); err != nil {
			log.Printf("Price poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Println("Price poller stopped")
			return
		case <-time.After(p.interval):
		}
	}
}

// PollOnce fetches the current quote and stores exactly one price row
func (p *PricePoller) PollOnce(ctx context.Context) error {
	price, err := p.quotes.LatestQuote(ctx, p.symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch quote: %w", err)
	}

	observedAt := time.Now().UTC()

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset models.Asset
		if err := tx.Where("symbol = ?", p.symbol).First(&asset).Error; err != nil {
			return fmt.Errorf("asset lookup for %s failed: %w", p.symbol, err)
		}

		row := models.PriceData{
			ID:        uuid.New(),
			AssetID:   asset.ID,
			PriceUSD:  price,
			PriceDate: observedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store price: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("Stored price: %s at %s", price, observedAt.Format(time.RFC3339))
	return nil
}
