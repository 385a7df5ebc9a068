package query

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/transform"
	"catalog_sync/internal/upstream"
)

func sampleProduct() *domain.Product {
	return &domain.Product{
		ExternalID:        1,
		Handle:            "classic-tee",
		Title:             "Classic Tee",
		ProductType:       "Shirt",
		Vendor:            "Acme",
		Brand:             "Acme",
		Status:            "ACTIVE",
		Available:         true,
		Tags:              []string{"Summer", "cotton"},
		CollectionHandles: []string{"shirts", "sale"},
		Attributes:        map[string]string{"color": "red", "size": "S,M,L", "serie": "summer"},
		PriceMin:          decimal.NewFromInt(10),
		PriceMax:          decimal.NewFromInt(30),
	}
}

func TestFromFilters_Match(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]string
		want    bool
	}{
		{name: "no filters", filters: nil, want: true},
		{name: "attribute case-insensitive", filters: map[string]string{"color": "Red"}, want: true},
		{name: "plural attribute key", filters: map[string]string{"colors": "red"}, want: true},
		{name: "attribute mismatch", filters: map[string]string{"color": "blue"}, want: false},
		{name: "unknown attribute", filters: map[string]string{"material": "wool"}, want: false},
		{name: "scalar field", filters: map[string]string{"product_type": " shirt "}, want: true},
		{name: "status", filters: map[string]string{"status": "active"}, want: true},
		{name: "available", filters: map[string]string{"available": "false"}, want: false},
		{name: "tag plural matches singular", filters: map[string]string{"tag": "Summers"}, want: true},
		{name: "collection singular matches plural", filters: map[string]string{"collection": "Shirt"}, want: true},
		{name: "any of several tags", filters: map[string]string{"tag": "wool,cotton"}, want: true},
		{name: "tag miss", filters: map[string]string{"tag": "winter"}, want: false},
		{name: "price overlaps from below", filters: map[string]string{"price_min": "25"}, want: true},
		{name: "price above range", filters: map[string]string{"price_min": "31"}, want: false},
		{name: "price below range", filters: map[string]string{"price_max": "5"}, want: false},
		{name: "price window inside", filters: map[string]string{"price_min": "12", "price_max": "20"}, want: true},
		{name: "combined", filters: map[string]string{"color": "red", "size": "m", "tag": "summer"}, want: true},
		{name: "one of several option values", filters: map[string]string{"size": "m"}, want: true},
		{name: "option value not offered", filters: map[string]string{"size": "xl"}, want: false},
		{name: "joined values are not a value", filters: map[string]string{"size": "s,m,l"}, want: false},
		{name: "plural-looking attribute key", filters: map[string]string{"series": "Summer"}, want: true},
		{name: "combined with one miss", filters: map[string]string{"color": "red", "size": "xl"}, want: false},
		{name: "blank values ignored", filters: map[string]string{"color": "  "}, want: true},
	}

	p := sampleProduct()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clauses, err := FromFilters(tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, MatchAll(clauses, p))
		})
	}
}

func TestFromFilters_MatchesTransformedProduct(t *testing.T) {
	p, err := transform.Product(upstream.ProductRecord{
		ID:      "gid://shopify/Product/5",
		Handle:  "linen-shorts",
		Title:   "Linen Shorts",
		Tags:    []string{"series:summer", "fits-relaxed"},
		Options: []upstream.ProductOption{{Name: "Sizes", Values: []string{"S", "M", "L"}}},
	})
	require.NoError(t, err)

	tests := []struct {
		filters map[string]string
		want    bool
	}{
		{map[string]string{"series": "summer"}, true},
		{map[string]string{"fit": "Relaxed"}, true},
		{map[string]string{"fits": "relaxed"}, true},
		{map[string]string{"size": "M"}, true},
		{map[string]string{"sizes": "l"}, true},
		{map[string]string{"size": "XL"}, false},
	}

	for _, tt := range tests {
		clauses, err := FromFilters(tt.filters)
		require.NoError(t, err)
		assert.Equal(t, tt.want, MatchAll(clauses, p), tt.filters)
	}
}

func TestFromFilters_Errors(t *testing.T) {
	_, err := FromFilters(map[string]string{"price_min": "abc"})
	assert.Error(t, err)

	_, err = FromFilters(map[string]string{"price_min": "50", "price_max": "10"})
	assert.Error(t, err)
}

func TestBuilder_UnknownMembershipField(t *testing.T) {
	_, err := NewBuilder().Member("vendors", "acme").Build()
	assert.Error(t, err)
}

func TestWhere(t *testing.T) {
	ten := decimal.NewFromInt(10)
	clauses, err := NewBuilder().
		Equal("vendor", "Acme").
		PriceBetween(&ten, nil).
		Member(FieldTags, "Sale").
		Build()
	require.NoError(t, err)

	sql, args := Where(clauses, 0)
	assert.Equal(t,
		`lower(regexp_replace(btrim(vendor), '\s+', ' ', 'g')) = $1 AND (price_max >= $2) AND `+
			`EXISTS (SELECT 1 FROM unnest(tags) AS v WHERE lower(regexp_replace(btrim(v), '\s+', ' ', 'g')) = ANY($3))`,
		sql)
	require.Len(t, args, 3)
	assert.Equal(t, "acme", args[0])
	assert.True(t, ten.Equal(args[1].(decimal.Decimal)))
	assert.Equal(t, stringArray{"sale", "sales"}, args[2])
}

func TestWhere_AttributeWithOffset(t *testing.T) {
	clauses, err := NewBuilder().Equal("Color", "Red").Equal("available", "true").Build()
	require.NoError(t, err)

	sql, args := Where(clauses, 2)
	assert.Equal(t,
		`EXISTS (SELECT 1 FROM unnest(string_to_array(attributes->>$3, ',')) AS e `+
			`WHERE lower(regexp_replace(btrim(e), '\s+', ' ', 'g')) = $4) AND available = $5`,
		sql)
	assert.Equal(t, []any{"color", "red", true}, args)
}

func TestWhere_Empty(t *testing.T) {
	sql, args := Where(nil, 0)
	assert.Equal(t, "TRUE", sql)
	assert.Empty(t, args)
}
