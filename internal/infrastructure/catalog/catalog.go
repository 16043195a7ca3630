// Package catalog loads the seed agreements and default daily limits
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

//go:embed default_catalog.json
var defaultCatalog []byte

//go:embed schema.json
var catalogSchema []byte

// Catalog is the reference data loaded at startup
type Catalog struct {
	Agreements  []*entity.Agreement `json:"agreements"`
	DailyLimits map[string]float64  `json:"daily_limits"`
}

// Categories returns the categories that have a default limit, sorted
func (c *Catalog) Categories() []string {
	categories := make([]string, 0, len(c.DailyLimits))
	for category := range c.DailyLimits {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// Load reads a catalog file. An empty path loads the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse checks data against the catalog schema, decodes it and validates
// every agreement
func Parse(data []byte) (*Catalog, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Agreements))
	for _, a := range c.Agreements {
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate agreement %s in catalog", a.ID)
		}
		seen[a.ID] = true

		if err := utils.ValidateStruct(a); err != nil {
			return nil, fmt.Errorf("agreement %s: %w", a.ID, err)
		}
		if a.Period.End.Before(a.Period.Start) {
			return nil, fmt.Errorf("agreement %s: contract period ends before it starts", a.ID)
		}
	}
	return &c, nil
}

func validateSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.schema.json", bytes.NewReader(catalogSchema)); err != nil {
		return fmt.Errorf("add catalog schema: %w", err)
	}
	schema, err := compiler.Compile("catalog.schema.json")
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("catalog does not match schema: %w", err)
	}
	return nil
}
