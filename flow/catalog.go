package flow

import (
	_ "embed"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// RepairOption is one orderable repair
type RepairOption struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// DurationOption is a turnaround choice and its surcharge
type DurationOption struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// Catalog is the price list used by the quote step
type Catalog struct {
	Currency  string           `json:"currency"`
	Repairs   []RepairOption   `json:"repairs"`
	Durations []DurationOption `json:"durations"`
}

type rawCatalog struct {
	Currency  string `yaml:"currency"`
	Durations map[string]struct {
		Label     string `yaml:"label"`
		Surcharge string `yaml:"surcharge"`
	} `yaml:"durations"`
	Repairs []struct {
		Type  string `yaml:"type"`
		Name  string `yaml:"name"`
		Price string `yaml:"price"`
	} `yaml:"repairs"`
}

// DefaultCatalog returns the embedded price list
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog reads a price list
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse repair catalog: %w", err)
	}

	c := &Catalog{Currency: raw.Currency}
	for _, r := range raw.Repairs {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("repair %s: invalid price %q: %w", r.Type, r.Price, err)
		}
		c.Repairs = append(c.Repairs, RepairOption{Type: r.Type, Name: r.Name, Price: price})
	}
	for _, key := range []string{"standard", "express"} {
		d, ok := raw.Durations[key]
		if !ok {
			continue
		}
		surcharge, err := decimal.NewFromString(d.Surcharge)
		if err != nil {
			return nil, fmt.Errorf("duration %s: invalid surcharge %q: %w", key, d.Surcharge, err)
		}
		c.Durations = append(c.Durations, DurationOption{Key: key, Label: d.Label, Surcharge: surcharge})
	}
	if len(c.Repairs) == 0 {
		return nil, fmt.Errorf("repair catalog is empty")
	}
	return c, nil
}

// Repair looks up a repair by type
func (c *Catalog) Repair(repairType string) (RepairOption, bool) {
	for _, r := range c.Repairs {
		if r.Type == repairType {
			return r, true
		}
	}
	return RepairOption{}, false
}

// Duration looks up a turnaround option. An empty key means standard.
func (c *Catalog) Duration(key string) (DurationOption, bool) {
	if key == "" {
		key = "standard"
	}
	for _, d := range c.Durations {
		if d.Key == key {
			return d, true
		}
	}
	return DurationOption{}, false
}

// Quote prices a repair with the chosen turnaround
func (c *Catalog) Quote(repairType, duration string) (decimal.Decimal, error) {
	repair, ok := c.Repair(repairType)
	if !ok {
		return decimal.Zero, &ValidationError{Field: "repairType", Message: fmt.Sprintf("unknown repair type %q", repairType)}
	}
	d, ok := c.Duration(duration)
	if !ok {
		return decimal.Zero, &ValidationError{Field: "duration", Message: fmt.Sprintf("unknown duration %q", duration)}
	}
	return repair.Price.Add(d.Surcharge).Round(2), nil
}
