package transform

import (
	"strings"

	"github.com/shopspring/decimal"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/upstream"
)

// ValueSeparator joins the values of a multi-value option attribute.
const ValueSeparator = ","

const (
	statusActive  = "ACTIVE"
	brandKey      = "brand"
	defaultOption = "title"
)

// Product maps one upstream product.
func Product(rec upstream.ProductRecord) (*domain.Product, error) {
	id, err := ParseGID(rec.ID)
	if err != nil {
		return nil, err
	}

	updatedAt, err := parseTime("updatedAt", rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	priceMin, priceMax, available, err := variantSummary(rec.Variants)
	if err != nil {
		return nil, err
	}

	vendor := str(rec.Vendor)
	p := &domain.Product{
		ExternalID:        id,
		Handle:            strings.TrimSpace(rec.Handle),
		Title:             strings.TrimSpace(rec.Title),
		Description:       str(rec.Description),
		ProductType:       str(rec.ProductType),
		Vendor:            vendor,
		Brand:             vendor,
		Status:            strings.ToUpper(strings.TrimSpace(rec.Status)),
		Tags:              dedupe(rec.Tags),
		Attributes:        Attributes(rec.Options, rec.Tags, vendor),
		PriceMin:          priceMin,
		PriceMax:          priceMax,
		CollectionNames:   dedupe(rec.Collections),
		CollectionHandles: []string{},
		UpstreamUpdatedAt: updatedAt,
	}
	p.Available = p.Status == statusActive && available

	if rec.FeaturedImage != nil && rec.FeaturedImage.URL != "" {
		url := rec.FeaturedImage.URL
		p.ImageURL = &url
	}

	return p, nil
}

// Attributes merges the structured attribute sources of a product. Explicit
// option values win over tag-derived pairs; the vendor only fills "brand"
// when neither source named one. Keys are stored in their Singular form so
// "sizes" and "size" address the same attribute. An option with several
// values is stored joined by ValueSeparator.
func Attributes(options []upstream.ProductOption, tags []string, vendor string) map[string]string {
	attrs := make(map[string]string)

	for _, tag := range tags {
		key, value, ok := SplitTag(tag)
		if !ok {
			continue
		}
		key = Singular(key)
		if _, seen := attrs[key]; seen {
			continue
		}
		attrs[key] = value
	}

	for _, opt := range options {
		key := Normalize(opt.Name)
		if key == "" || key == defaultOption {
			continue
		}
		key = Singular(key)
		values := dedupe(opt.Values)
		if len(values) == 0 {
			continue
		}
		attrs[key] = strings.Join(values, ValueSeparator)
	}

	if vendor != "" {
		if _, ok := attrs[brandKey]; !ok {
			attrs[brandKey] = vendor
		}
	}

	return attrs
}

// AttributeValues splits a stored attribute into its individual values.
func AttributeValues(v string) []string {
	return strings.Split(v, ValueSeparator)
}

// SplitTag decomposes "category:value" or "category-value" into a lower-cased
// pair. A colon takes precedence over a dash so "size:x-large" keeps its value.
func SplitTag(tag string) (string, string, bool) {
	t := Normalize(tag)
	sep := strings.IndexByte(t, ':')
	if sep < 0 {
		sep = strings.IndexByte(t, '-')
	}
	if sep <= 0 || sep == len(t)-1 {
		return "", "", false
	}

	key := strings.TrimSpace(t[:sep])
	value := strings.TrimSpace(t[sep+1:])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

func variantSummary(variants []upstream.Variant) (decimal.Decimal, decimal.Decimal, bool, error) {
	var (
		lo, hi    decimal.Decimal
		available bool
		priced    bool
	)
	for _, v := range variants {
		price, err := parseMoney("variant price", v.Price)
		if err != nil {
			return decimal.Zero, decimal.Zero, false, err
		}
		if !priced || price.LessThan(lo) {
			lo = price
		}
		if !priced || price.GreaterThan(hi) {
			hi = price
		}
		priced = true
		available = available || v.AvailableForSale
	}
	return lo, hi, available, nil
}
