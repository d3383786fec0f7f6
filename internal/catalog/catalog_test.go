package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/catalog"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)

	bakery, ok := c.Building("bakery")
	require.True(t, ok)
	assert.Equal(t, 100.0, bakery.StorageCapacity)
	require.Len(t, bakery.Recipes, 1)
	assert.Equal(t, []string{"flour"}, bakery.Recipes[0].InputTypes())
	assert.Equal(t, catalog.HourRange{3, 11}, c.WorkHours("bakery")[0])
	assert.Nil(t, c.WorkHours("mill"))

	assert.True(t, c.IsFood("bread"))
	assert.False(t, c.IsFood("timber"))
	assert.False(t, c.IsFood("unknown"))
	assert.Equal(t, 4, c.ResourceTier("spiced_wine"))
	assert.Equal(t, 1, c.ResourceTier("unknown"))
	assert.Equal(t, 0.0, c.StorageCapacity("unknown"))

	assert.NotEmpty(t, c.Geography.LandPoints)
	assert.NotEmpty(t, c.Geography.WaterPoints)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "duplicate building",
			raw: `
buildings:
  - {type: inn}
  - {type: inn}
`,
		},
		{
			name: "unknown recipe resource",
			raw: `
resources:
  - {id: flour}
buildings:
  - type: bakery
    recipes:
      - inputs: {flour: 1}
        outputs: {cake: 1}
`,
		},
		{
			name: "work hours out of range",
			raw: `
buildings:
  - type: bakery
    work_hours: [[3, 25]]
`,
		},
		{
			name: "not yaml",
			raw:  "buildings: [",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}
