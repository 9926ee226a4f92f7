package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/forecast"
)

const dateLayout = "2006-01-02"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bloomctl",
		Short:        "Offline bloom classification and forecasting",
		SilenceUsage: true,
	}
	root.AddCommand(
		newSeasonCmd(),
		newClassifyCmd(),
		newPhenologyCmd(),
		newGenmockCmd(),
		newForecastCmd(),
	)
	return root
}

func newSeasonCmd() *cobra.Command {
	var (
		lat  float64
		date string
	)
	cmd := &cobra.Command{
		Use:   "season",
		Short: "Resolve the season, phase, and climate zone for a latitude and date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := parseDate(date)
			if err != nil {
				return err
			}
			sc := domain.ResolveSeason(lat, at)
			return writeJSON(cmd.OutOrStdout(), struct {
				domain.SeasonalContext
				Timeline domain.Timeline `json:"timeline"`
			}{sc, sc.Timeline()})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	var (
		index   float64
		lat     float64
		date    string
		catalog string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a vegetation index reading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := domain.ValidateLocation(lat, 0); err != nil {
				return err
			}
			if index < 0 || index > 1 {
				return fmt.Errorf("ndvi must be within [0, 1], got %v", index)
			}
			at, err := parseDate(date)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(catalog)
			if err != nil {
				return err
			}
			sc := domain.ResolveSeason(lat, at)
			return writeJSON(cmd.OutOrStdout(), domain.Assess(index, lat, sc, cat.ForContext(sc)))
		},
	}
	cmd.Flags().Float64Var(&index, "ndvi", 0, "vegetation index value in [0, 1]")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&catalog, "catalog", "", "phenology catalog YAML (default built-in)")
	_ = cmd.MarkFlagRequired("ndvi")
	return cmd
}

func newPhenologyCmd() *cobra.Command {
	var (
		lat     float64
		date    string
		catalog string
	)
	cmd := &cobra.Command{
		Use:   "phenology",
		Short: "List the characteristic species for a latitude and date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := parseDate(date)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(catalog)
			if err != nil {
				return err
			}
			sc := domain.ResolveSeason(lat, at)
			entries := cat.ForContext(sc)
			if entries == nil {
				entries = []domain.PhenologyEntry{}
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&catalog, "catalog", "", "phenology catalog YAML (default built-in)")
	return cmd
}

func newGenmockCmd() *cobra.Command {
	var (
		lat, lon float64
		months   int
		end      string
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:   "genmock",
		Short: "Generate a synthetic monthly vegetation history fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := domain.ValidateLocation(lat, lon); err != nil {
				return err
			}
			if months < 1 {
				return fmt.Errorf("months must be positive, got %d", months)
			}
			last, err := parseDate(end)
			if err != nil {
				return err
			}
			first := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

			gen := domain.NewFallbackProvider(rand.NewPCG(seed, seed))
			hist, err := gen.History(cmd.Context(), domain.ObservationQuery{Lat: lat, Lon: lon, Start: first, End: last})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hist)
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in degrees")
	cmd.Flags().IntVar(&months, "months", 36, "number of months to generate")
	cmd.Flags().StringVar(&end, "end", "", "last month as YYYY-MM-DD (default today)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed for reproducible fixtures")
	return cmd
}

func newForecastCmd() *cobra.Command {
	var (
		file   string
		months int
		now    string
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast from a monthly history fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hist, err := readHistory(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			at, err := forecastNow(now, hist)
			if err != nil {
				return err
			}
			f := forecast.NewEngine().Forecast(domain.MonthlySeries(hist), at, months)
			if len(hist) > 0 {
				f.Lat, f.Lon = hist[0].Lat, hist[0].Lon
				f.SourceTag = hist[len(hist)-1].SourceTag
			}
			return writeJSON(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "history JSON produced by genmock, or - for stdin")
	cmd.Flags().IntVar(&months, "months", forecast.DefaultMonths, "months to forecast")
	cmd.Flags().StringVar(&now, "now", "", "forecast origin as YYYY-MM-DD (default last observation)")
	return cmd
}

func readHistory(stdin io.Reader, path string) ([]domain.VegetationObservation, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		defer f.Close()
		r = f
	}
	var hist []domain.VegetationObservation
	if err := json.NewDecoder(r).Decode(&hist); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return hist, nil
}

func forecastNow(flag string, hist []domain.VegetationObservation) (time.Time, error) {
	if flag != "" {
		return time.Parse(dateLayout, flag)
	}
	var last time.Time
	for _, h := range hist {
		if h.Date.After(last) {
			last = h.Date
		}
	}
	if last.IsZero() {
		return domain.Now(), nil
	}
	return last, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return domain.Now(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t.Add(12 * time.Hour), nil
}

func loadCatalog(path string) (*domain.PhenologyCatalog, error) {
	if path == "" {
		return domain.DefaultPhenologyCatalog(), nil
	}
	return domain.LoadPhenologyCatalogFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
