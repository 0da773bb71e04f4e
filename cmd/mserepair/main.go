package main

import (
	"log"
	"os"

	"stablewatch/config"
	"stablewatch/services/volatility"
)

// mserepair recomputes the stored peg error metric and exits. By default it
// only fills rows where the metric is missing; set MSE_REPAIR_MODE=force to
// recompute every row. Runs outside the regular schedule, invoked by hand.
func main() {
	log.Println("==============================================")
	log.Println("  stablewatch MSE repair - Starting...")
	log.Println("==============================================")

	if _, err := config.LoadConfig(); err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer config.CloseDB()

	mode := os.Getenv("MSE_REPAIR_MODE")
	if mode == "force" {
		log.Println("Force recomputing MSE for all rows")
		err = volatility.ForceRecomputeMSE(db)
	} else {
		log.Println("Backfilling missing MSE values")
		err = volatility.BackfillMissingMSE(db)
	}

	if err != nil {
		log.Fatalf("MSE repair failed: %v", err)
	}
	log.Println("MSE repair completed")
}
