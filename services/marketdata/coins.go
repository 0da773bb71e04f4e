package marketdata

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"stablewatch/models"
)

// CoinIDs maps asset symbols to CoinGecko coin ids. The mapping is curated
// by hand: the CoinGecko search API returns multiple matches for most of
// these tickers, so resolving them automatically is not reliable.
var CoinIDs = map[string]string{
	"DAI":    "dai",
	"USDC":   "usd-coin",
	"USDT":   "tether",
	"USDD":   "usdd",
	"FDUSD":  "first-digital-usd",
	"USDC.e": "bridged-usdc-polygon-pos-bridge",
	"USDe":   "ethena-usde",
	"USDJ":   "just-stablecoin",
}

// CoinID resolves a symbol to its CoinGecko id.
func CoinID(symbol string) (string, bool) {
	id, ok := CoinIDs[symbol]
	return id, ok
}

// ValidateCoinIDs checks every Asset row against the curated mapping and
// logs the symbols that cannot be fetched. Run at startup so missing
// mappings surface before the first tracking pass, not mid-run.
func ValidateCoinIDs(db *gorm.DB) error {
	var assets []models.Asset
	if err := db.Find(&assets).Error; err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}

	missing := 0
	for _, asset := range assets {
		if _, ok := CoinIDs[asset.Symbol]; !ok {
			log.Printf("Warning: no CoinGecko id mapping for asset %s (%s)", asset.Symbol, asset.ID)
			missing++
		}
	}

	log.Printf("Coin id mapping check: %d assets, %d without mapping", len(assets), missing)
	return nil
}
