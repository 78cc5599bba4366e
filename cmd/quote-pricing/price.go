package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quote-pricing/core/calc"
	"quote-pricing/core/model"
	"quote-pricing/core/quote"
	"quote-pricing/db"
	"quote-pricing/internal/config"
	"quote-pricing/internal/logging"
)

func priceCmd() *cobra.Command {
	var modelID string
	var debug bool

	cmd := &cobra.Command{
		Use:   "price [request.json]",
		Short: "Price a quote request locally and print the result",
		Long: `Price reads a JSON calculation request from the given file (or
stdin when no file is named), runs it against the local reference
database, and prints the response data.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Logging())
			if err != nil {
				return err
			}
			defer log.Sync()

			var reader io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				reader = f
			}
			var raw map[string]any
			if err := json.NewDecoder(reader).Decode(&raw); err != nil {
				return fmt.Errorf("decode request: %w", err)
			}

			conn, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer conn.Close()

			store := db.NewStore(conn, log)
			calculator := calc.New(store, log)

			def, ok := model.NewRegistry().Get(modelID, debug)
			if !ok {
				return fmt.Errorf("unknown model %q", modelID)
			}

			var outputs calc.Outputs
			switch def.ID {
			case model.RecommendedPriceID:
				orchestrator := quote.New(store, &quote.LocalPricer{Calc: calculator}, log, cfg.MaxParallelLines)
				res, err := orchestrator.Quote(cmd.Context(), raw, def, "cli", uuid.NewString(), "")
				if err != nil {
					return err
				}
				outputs = res.Outputs
			case model.QuoteLineSapID:
				res, err := calculator.Price(cmd.Context(), raw, def)
				if err != nil {
					return err
				}
				outputs = res.Outputs
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(outputs)
		},
	}

	cmd.Flags().StringVar(&modelID, "model", model.RecommendedPriceID, "calculation model id")
	cmd.Flags().BoolVar(&debug, "debug", false, "include intermediate values in the output")
	return cmd
}
