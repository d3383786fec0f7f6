// Package catalog holds read-only reference data: building types, resource
// types, production recipes, and the geography used for placement and fishing.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/world"
)

//go:embed default.yaml
var defaultCatalog []byte

// Building categories.
const (
	CategoryHome      = "home"
	CategoryBusiness  = "business"
	CategoryTransport = "transport"
	CategoryStorage   = "storage"
	CategoryPassive   = "passive"
)

// Well-known sub-categories and types the scheduler keys behaviour on.
const (
	SubCategoryConstruction = "construction"
	SubCategoryPorter       = "porter"
	SubCategoryInn          = "inn"
	SubCategoryTavern       = "tavern"

	TypeFishermansCottage = "fisherman_s_cottage"
	TypeMerchantGalley    = "merchant_galley"
	TypePublicDock        = "public_dock"

	CategoryFood = "food"
	ResourceFish = "fish"
)

// HourRange is a half-open [Start, End) range of hours on a 24h ring. End may
// be smaller than Start when the range wraps midnight.
type HourRange [2]float64

// Start returns the first hour of the range.
func (h HourRange) Start() float64 { return h[0] }

// End returns the hour at which the range closes.
func (h HourRange) End() float64 { return h[1] }

// Recipe turns inputs into outputs over Minutes of work.
type Recipe struct {
	Inputs  map[string]float64 `yaml:"inputs"`
	Outputs map[string]float64 `yaml:"outputs"`
	Minutes int                `yaml:"minutes"`
}

// InputTypes returns the recipe's inputs in a stable order.
func (r Recipe) InputTypes() []string {
	return sortedKeys(r.Inputs)
}

// OutputTypes returns the recipe's outputs in a stable order.
func (r Recipe) OutputTypes() []string {
	return sortedKeys(r.Outputs)
}

// BuildingType describes one kind of building.
type BuildingType struct {
	Type                string      `yaml:"type"`
	Name                string      `yaml:"name"`
	Category            string      `yaml:"category"`
	SubCategory         string      `yaml:"sub_category"`
	StorageCapacity     float64     `yaml:"storage_capacity"`
	Tier                int         `yaml:"tier"`
	ConstructionMinutes int         `yaml:"construction_minutes"`
	ConstructionCost    float64     `yaml:"construction_cost"`
	WorkHours           []HourRange `yaml:"work_hours"`
	Recipes             []Recipe    `yaml:"recipes"`
}

// ResourceType describes one kind of good.
type ResourceType struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Tier        int     `yaml:"tier"`
	Category    string  `yaml:"category"`
	ImportPrice float64 `yaml:"import_price"`
}

// BasePrice returns the catalog import price as money.
func (r ResourceType) BasePrice() economy.Ducats {
	return economy.FromFloat(r.ImportPrice)
}

// WaterPoint is a navigable spot fishermen can work.
type WaterPoint struct {
	ID       string         `yaml:"id"`
	Position world.Position `yaml:"position"`
	HasFish  bool           `yaml:"has_fish"`
}

// Geography lists fixed places on the map.
type Geography struct {
	LandPoints  []world.Position `yaml:"land_points"`
	WaterPoints []WaterPoint     `yaml:"water_points"`
	ExitPoints  []world.Position `yaml:"exit_points"`
}

// Catalog is the loaded reference data with lookup indices.
type Catalog struct {
	Buildings []BuildingType `yaml:"buildings"`
	Resources []ResourceType `yaml:"resources"`
	Geography Geography      `yaml:"geography"`

	buildingIndex map[string]*BuildingType
	resourceIndex map[string]*ResourceType
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from a YAML file. An empty path loads the default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and indexes a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.buildingIndex = make(map[string]*BuildingType, len(c.Buildings))
	for i := range c.Buildings {
		b := &c.Buildings[i]
		if b.Type == "" {
			return fmt.Errorf("catalog: building entry %d has no type", i)
		}
		if _, dup := c.buildingIndex[b.Type]; dup {
			return fmt.Errorf("catalog: duplicate building type %q", b.Type)
		}
		for _, wh := range b.WorkHours {
			if wh.Start() < 0 || wh.Start() > 24 || wh.End() < 0 || wh.End() > 24 {
				return fmt.Errorf("catalog: building %q has work hours out of range", b.Type)
			}
		}
		c.buildingIndex[b.Type] = b
	}

	c.resourceIndex = make(map[string]*ResourceType, len(c.Resources))
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.ID == "" {
			return fmt.Errorf("catalog: resource entry %d has no id", i)
		}
		if _, dup := c.resourceIndex[r.ID]; dup {
			return fmt.Errorf("catalog: duplicate resource %q", r.ID)
		}
		c.resourceIndex[r.ID] = r
	}

	for _, b := range c.Buildings {
		for _, rec := range b.Recipes {
			for _, id := range append(rec.InputTypes(), rec.OutputTypes()...) {
				if _, ok := c.resourceIndex[id]; !ok {
					return fmt.Errorf("catalog: building %q recipe references unknown resource %q", b.Type, id)
				}
			}
		}
	}
	return nil
}

// Building returns the building type definition, if known.
func (c *Catalog) Building(buildingType string) (*BuildingType, bool) {
	b, ok := c.buildingIndex[buildingType]
	return b, ok
}

// Resource returns the resource type definition, if known.
func (c *Catalog) Resource(id string) (*ResourceType, bool) {
	r, ok := c.resourceIndex[id]
	return r, ok
}

// StorageCapacity returns the storage capacity of a building type, zero for
// unknown types.
func (c *Catalog) StorageCapacity(buildingType string) float64 {
	if b, ok := c.buildingIndex[buildingType]; ok {
		return b.StorageCapacity
	}
	return 0
}

// WorkHours returns a building type's published working hours, nil when the
// type follows its workers' class schedule.
func (c *Catalog) WorkHours(buildingType string) []HourRange {
	if b, ok := c.buildingIndex[buildingType]; ok {
		return b.WorkHours
	}
	return nil
}

// IsFood reports whether a resource is edible.
func (c *Catalog) IsFood(id string) bool {
	r, ok := c.resourceIndex[id]
	return ok && r.Category == CategoryFood
}

// ResourceTier returns the tier of a resource, defaulting to 1.
func (c *Catalog) ResourceTier(id string) int {
	if r, ok := c.resourceIndex[id]; ok && r.Tier > 0 {
		return r.Tier
	}
	return 1
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
