package transform

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/upstream"
	"catalog_sync/testdata/utils"
)

func sampleProduct() upstream.ProductRecord {
	return upstream.ProductRecord{
		ID:          "gid://shopify/Product/1001",
		Handle:      "linen-shirt",
		Title:       "Linen Shirt",
		Description: utils.Ptr("Breathable summer shirt"),
		ProductType: utils.Ptr("Shirts"),
		Vendor:      utils.Ptr("Acme"),
		Status:      "active",
		Tags:        []string{"size-L", "Color:Blue", "color:red", "summer"},
		UpdatedAt:   "2024-05-01T10:00:00Z",
		Options: []upstream.ProductOption{
			{Name: "Size", Values: []string{"M"}},
		},
		Variants: []upstream.Variant{
			{ID: "gid://shopify/ProductVariant/1", Price: "19.90", AvailableForSale: false},
			{ID: "gid://shopify/ProductVariant/2", Price: "24.50", AvailableForSale: true},
		},
		Collections: []string{"Summer Sale", "Shirts", "Summer Sale"},
	}
}

func TestProduct_MapsScalars(t *testing.T) {
	p, err := Product(sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, int64(1001), p.ExternalID)
	assert.Equal(t, "linen-shirt", p.Handle)
	assert.Equal(t, "Linen Shirt", p.Title)
	assert.Equal(t, "Breathable summer shirt", p.Description)
	assert.Equal(t, "Shirts", p.ProductType)
	assert.Equal(t, "Acme", p.Brand)
	assert.Equal(t, "ACTIVE", p.Status)
	assert.True(t, p.Available)
	assert.True(t, decimal.RequireFromString("19.90").Equal(p.PriceMin))
	assert.True(t, decimal.RequireFromString("24.50").Equal(p.PriceMax))
	assert.Equal(t, []string{"Summer Sale", "Shirts"}, p.CollectionNames)
	assert.Empty(t, p.CollectionHandles)
	assert.Equal(t, 2024, p.UpstreamUpdatedAt.Year())
	assert.Nil(t, p.ImageURL)
}

func TestProduct_ExplicitOptionWinsOverTag(t *testing.T) {
	p, err := Product(sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, "M", p.Attributes["size"])
}

func TestProduct_FirstTagPerCategoryWins(t *testing.T) {
	p, err := Product(sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, "blue", p.Attributes["color"])
	assert.NotContains(t, p.Attributes, "summer")
}

func TestProduct_MissingScalarsAreEmpty(t *testing.T) {
	rec := upstream.ProductRecord{
		ID:     "gid://shopify/Product/7",
		Handle: "bare",
		Title:  "Bare",
	}

	p, err := Product(rec)
	require.NoError(t, err)

	assert.Equal(t, "", p.Description)
	assert.Equal(t, "", p.ProductType)
	assert.Equal(t, "", p.Vendor)
	assert.NotNil(t, p.Attributes)
	assert.NotNil(t, p.Tags)
	assert.NotNil(t, p.CollectionHandles)
	assert.False(t, p.Available)
	assert.True(t, p.PriceMin.IsZero())
}

func TestProduct_Malformed(t *testing.T) {
	cases := map[string]func(r *upstream.ProductRecord){
		"bad gid":     func(r *upstream.ProductRecord) { r.ID = "gid://shopify/Product/abc" },
		"empty gid":   func(r *upstream.ProductRecord) { r.ID = "" },
		"bad price":   func(r *upstream.ProductRecord) { r.Variants[0].Price = "12,00" },
		"bad updated": func(r *upstream.ProductRecord) { r.UpdatedAt = "yesterday" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rec := sampleProduct()
			mutate(&rec)

			_, err := Product(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedRecord))
		})
	}
}

func TestProduct_Deterministic(t *testing.T) {
	a, err := Product(sampleProduct())
	require.NoError(t, err)
	b, err := Product(sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestAttributes_BrandFallback(t *testing.T) {
	attrs := Attributes(nil, []string{"material:cotton"}, "Acme")
	assert.Equal(t, "Acme", attrs["brand"])

	attrs = Attributes(nil, []string{"brand:house"}, "Acme")
	assert.Equal(t, "house", attrs["brand"])

	attrs = Attributes([]upstream.ProductOption{{Name: "Brand", Values: []string{"Other"}}}, []string{"brand:house"}, "Acme")
	assert.Equal(t, "Other", attrs["brand"])
}

func TestAttributes_KeysAreSingular(t *testing.T) {
	attrs := Attributes(
		[]upstream.ProductOption{{Name: "Sizes", Values: []string{"S", "M", "L"}}},
		[]string{"series:summer", "Materials:linen", "fits-slim"},
		"",
	)

	assert.Equal(t, map[string]string{
		"size":     "S,M,L",
		"serie":    "summer",
		"material": "linen",
		"fit":      "slim",
	}, attrs)
	assert.Equal(t, []string{"S", "M", "L"}, AttributeValues(attrs["size"]))
}

func TestAttributes_SkipsDefaultOption(t *testing.T) {
	attrs := Attributes([]upstream.ProductOption{{Name: "Title", Values: []string{"Default Title"}}}, nil, "")
	assert.Empty(t, attrs)
}

func TestSplitTag(t *testing.T) {
	tests := []struct {
		tag   string
		key   string
		value string
		ok    bool
	}{
		{"size-L", "size", "l", true},
		{"Color:Navy Blue", "color", "navy blue", true},
		{"size:x-large", "size", "x-large", true},
		{"summer", "", "", false},
		{"-dash", "", "", false},
		{"trailing:", "", "", false},
	}

	for _, tt := range tests {
		key, value, ok := SplitTag(tt.tag)
		assert.Equal(t, tt.ok, ok, tt.tag)
		assert.Equal(t, tt.key, key, tt.tag)
		assert.Equal(t, tt.value, value, tt.tag)
	}
}
