package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
)

var seedRateCards bool

var seedCmd = &cobra.Command{
	Use:   "seed [merchants.json]",
	Short: "Register merchants, pickup locations and rate cards",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedRateCards, "rate-cards", true, "load the built-in standard rate cards")
	rootCmd.AddCommand(seedCmd)
}

type merchantSeed struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Category   string                  `json:"category"`
	Warehouses []fulfillment.Warehouse `json:"warehouses"`
}

type seedDoc struct {
	Merchants []merchantSeed `json:"merchants"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if seedRateCards {
		if a.rateWriter == nil {
			log.Info().Msg("Store has built-in rate cards, nothing to load")
		} else {
			for _, rc := range billing.DefaultRateCards() {
				if err := a.rateWriter.Put(ctx, rc); err != nil {
					return err
				}
			}
			log.Info().Int("count", len(billing.DefaultRateCards())).Msg("Rate cards loaded")
		}
	}
	if len(args) == 1 {
		return seedFromFile(ctx, a, args[0])
	}
	return nil
}

func seedFromFile(ctx context.Context, a *app, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var doc seedDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for _, m := range doc.Merchants {
		if m.ID == "" {
			return fmt.Errorf("seed file %s: merchant without id", path)
		}
		if err := a.merchants.PutMerchant(ctx, m.ID, m.Name, m.Category); err != nil {
			return err
		}
		for _, w := range m.Warehouses {
			if err := w.Address.Validate("warehouse." + w.Name); err != nil {
				return fmt.Errorf("merchant %s: %w", m.ID, err)
			}
			if err := a.merchants.PutWarehouse(ctx, m.ID, w); err != nil {
				return err
			}
		}
		log.Info().Str("merchant_id", m.ID).Int("warehouses", len(m.Warehouses)).Msg("Merchant registered")
	}
	return nil
}
