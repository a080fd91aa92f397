package product

import (
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of the seed catalog.
type catalogFile struct {
	Products []catalogEntry `yaml:"products"`
}

type catalogEntry struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Type            string `yaml:"type"`
	Price           string `yaml:"price"`
	DurationMinutes int    `yaml:"duration_minutes"`
	LessonCount     int    `yaml:"lesson_count"`
	RedeemsFor      string `yaml:"redeems_for"`
	Inactive        bool   `yaml:"inactive"`
}

// LoadCatalogFile reads a YAML product catalog from disk.
func LoadCatalogFile(path string) ([]*Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return DecodeCatalog(f)
}

// DecodeCatalog parses a YAML product catalog and validates every entry.
func DecodeCatalog(r io.Reader) ([]*Product, error) {
	var cf catalogFile
	if err := yaml.NewDecoder(r).Decode(&cf); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	products := make([]*Product, 0, len(cf.Products))
	seen := make(map[string]bool, len(cf.Products))
	for i, e := range cf.Products {
		price := decimal.Zero
		if e.Price != "" {
			var err error
			price, err = decimal.NewFromString(e.Price)
			if err != nil {
				return nil, fmt.Errorf("catalog entry %d (%s): invalid price %q: %w", i, e.ID, e.Price, err)
			}
		}

		p := &Product{
			ID:              e.ID,
			Name:            e.Name,
			Description:     e.Description,
			Type:            Type(e.Type),
			Price:           price,
			DurationMinutes: e.DurationMinutes,
			LessonCount:     e.LessonCount,
			IsActive:        !e.Inactive,
		}
		if e.RedeemsFor != "" {
			redeemsFor := e.RedeemsFor
			p.RedeemsFor = &redeemsFor
		}

		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d (%s): %w", i, e.ID, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = true
		products = append(products, p)
	}
	return products, nil
}
