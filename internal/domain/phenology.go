package domain

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed phenology.yaml
var defaultPhenology []byte

// yearRound is the season key used by Tropical entries.
const yearRound = "YearRound"

// Fallback presentation when a zone and season have no curated entries.
const (
	MixedVegetation       = "Mixed Vegetation"
	TransitionDescription = "Local vegetation in seasonal transition"
)

// PhenologyCatalog is read-only regional flowering reference data.
type PhenologyCatalog struct {
	seasonal map[ClimateZone]map[Season][]PhenologyEntry
	tropical []PhenologyEntry
}

type catalogFile struct {
	Zones map[string]map[string][]PhenologyEntry `yaml:"zones"`
}

// LoadPhenologyCatalog parses a YAML catalog.
func LoadPhenologyCatalog(r io.Reader) (*PhenologyCatalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode phenology catalog: %w", err)
	}

	c := &PhenologyCatalog{seasonal: make(map[ClimateZone]map[Season][]PhenologyEntry)}
	for zoneName, seasons := range file.Zones {
		zone := ClimateZone(zoneName)
		switch zone {
		case ZoneTropical:
			for key, entries := range seasons {
				if key != yearRound {
					return nil, fmt.Errorf("phenology zone %s: unexpected season %q (want %s)", zone, key, yearRound)
				}
				if err := validateEntries(zone, key, entries); err != nil {
					return nil, err
				}
				c.tropical = entries
			}
		case ZoneNorthTemperate, ZoneSouthTemperate:
			bySeason := make(map[Season][]PhenologyEntry, len(seasons))
			for key, entries := range seasons {
				season := Season(key)
				if !slices.Contains(Seasons, season) {
					return nil, fmt.Errorf("phenology zone %s: unknown season %q", zone, key)
				}
				if err := validateEntries(zone, key, entries); err != nil {
					return nil, err
				}
				bySeason[season] = entries
			}
			c.seasonal[zone] = bySeason
		default:
			return nil, fmt.Errorf("phenology catalog: unknown climate zone %q", zoneName)
		}
	}
	return c, nil
}

// LoadPhenologyCatalogFile reads a YAML catalog from disk.
func LoadPhenologyCatalogFile(path string) (*PhenologyCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open phenology catalog: %w", err)
	}
	defer f.Close()
	return LoadPhenologyCatalog(f)
}

var loadDefaultCatalog = sync.OnceValues(func() (*PhenologyCatalog, error) {
	return LoadPhenologyCatalog(bytes.NewReader(defaultPhenology))
})

// DefaultPhenologyCatalog returns the embedded catalog. It panics if the
// embedded data is malformed, which is a build defect.
func DefaultPhenologyCatalog() *PhenologyCatalog {
	c, err := loadDefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

func validateEntries(zone ClimateZone, season string, entries []PhenologyEntry) error {
	for i, e := range entries {
		if e.SpeciesName == "" {
			return fmt.Errorf("phenology %s/%s entry %d: species is required", zone, season, i)
		}
		if e.IndexContribution < 0 || e.IndexContribution > 1 {
			return fmt.Errorf("phenology %s/%s entry %d: index_contribution %v out of range", zone, season, i, e.IndexContribution)
		}
	}
	return nil
}

// Lookup returns the entries for a zone and season in curated order. Season
// is ignored for the Tropical zone. The result is a copy and may be empty.
func (c *PhenologyCatalog) Lookup(zone ClimateZone, season Season) []PhenologyEntry {
	if c == nil {
		return nil
	}
	if zone == ZoneTropical {
		return slices.Clone(c.tropical)
	}
	return slices.Clone(c.seasonal[zone][season])
}

// ForContext looks up entries for a resolved seasonal context.
func (c *PhenologyCatalog) ForContext(sc SeasonalContext) []PhenologyEntry {
	return c.Lookup(sc.ClimateZone, sc.Season)
}

// Len reports the total number of entries, used for readiness checks.
func (c *PhenologyCatalog) Len() int {
	if c == nil {
		return 0
	}
	n := len(c.tropical)
	for _, seasons := range c.seasonal {
		for _, entries := range seasons {
			n += len(entries)
		}
	}
	return n
}
