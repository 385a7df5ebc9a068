// Package query serves filtered product reads. Filters are built as typed
// clauses that can be evaluated in memory against a domain.Product or
// rendered as a SQL predicate over the products table, with the same
// semantics either way.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/transform"
)

// Scalar fields understood by EqualClause. Any other field name addresses
// a key in Product.Attributes.
const (
	FieldProductType = "product_type"
	FieldVendor      = "vendor"
	FieldBrand       = "brand"
	FieldStatus      = "status"
	FieldHandle      = "handle"
	FieldAvailable   = "available"
)

// Array fields understood by MembershipClause.
const (
	FieldTags        = "tags"
	FieldCollections = "collection_handles"
)

// Filter map keys accepted by FromFilters besides the scalar fields.
const (
	KeyTag        = "tag"
	KeyCollection = "collection"
	KeyPriceMin   = "price_min"
	KeyPriceMax   = "price_max"
)

// Clause is one of EqualClause, RangeClause or MembershipClause.
type Clause interface {
	Match(p *domain.Product) bool
	render(args *argList) string
}

// EqualClause matches a scalar field or attribute case-insensitively. An
// attribute holding several values matches when any one of them does.
type EqualClause struct {
	Field string
	Value string
}

// RangeClause matches products whose price range overlaps [Min, Max]. A nil
// bound is open.
type RangeClause struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// MembershipClause matches when any element of the array field equals any
// of Values, ignoring case. Values are expanded to singular and plural
// forms at build time.
type MembershipClause struct {
	Field  string
	Values []string
}

func (c EqualClause) Match(p *domain.Product) bool {
	want := transform.Normalize(c.Value)
	switch c.Field {
	case FieldProductType:
		return transform.Normalize(p.ProductType) == want
	case FieldVendor:
		return transform.Normalize(p.Vendor) == want
	case FieldBrand:
		return transform.Normalize(p.Brand) == want
	case FieldStatus:
		return transform.Normalize(p.Status) == want
	case FieldHandle:
		return transform.Normalize(p.Handle) == want
	case FieldAvailable:
		b, err := strconv.ParseBool(want)
		return err == nil && p.Available == b
	default:
		v, ok := p.Attributes[c.Field]
		if !ok {
			return false
		}
		for _, part := range transform.AttributeValues(v) {
			if transform.Normalize(part) == want {
				return true
			}
		}
		return false
	}
}

func (c RangeClause) Match(p *domain.Product) bool {
	if c.Min != nil && p.PriceMax.LessThan(*c.Min) {
		return false
	}
	if c.Max != nil && p.PriceMin.GreaterThan(*c.Max) {
		return false
	}
	return true
}

func (c MembershipClause) Match(p *domain.Product) bool {
	var values []string
	switch c.Field {
	case FieldTags:
		values = p.Tags
	case FieldCollections:
		values = p.CollectionHandles
	default:
		return false
	}
	for _, v := range values {
		n := transform.Normalize(v)
		for _, want := range c.Values {
			if n == want {
				return true
			}
		}
	}
	return false
}

// MatchAll reports whether p satisfies every clause.
func MatchAll(clauses []Clause, p *domain.Product) bool {
	for _, c := range clauses {
		if !c.Match(p) {
			return false
		}
	}
	return true
}

// Builder accumulates clauses. The zero value is ready to use.
type Builder struct {
	clauses []Clause
	err     error
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Equal(field, value string) *Builder {
	field = transform.Normalize(field)
	if !isScalarField(field) {
		field = transform.Singular(field)
	}
	b.clauses = append(b.clauses, EqualClause{Field: field, Value: transform.Normalize(value)})
	return b
}

func (b *Builder) PriceBetween(lo, hi *decimal.Decimal) *Builder {
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		b.err = fmt.Errorf("price range %s..%s is empty", lo, hi)
		return b
	}
	b.clauses = append(b.clauses, RangeClause{Min: lo, Max: hi})
	return b
}

func (b *Builder) Member(field string, values ...string) *Builder {
	if field != FieldTags && field != FieldCollections {
		b.err = fmt.Errorf("membership on unknown field %q", field)
		return b
	}
	b.clauses = append(b.clauses, MembershipClause{Field: field, Values: expand(values)})
	return b
}

func (b *Builder) Build() ([]Clause, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.clauses, nil
}

// FromFilters builds clauses from a flat filter map as received from a
// caller. Keys are processed in sorted order so the result is stable.
func FromFilters(filters map[string]string) ([]Clause, error) {
	b := NewBuilder()

	var priceMin, priceMax *decimal.Decimal
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filters[key]
		if strings.TrimSpace(value) == "" {
			continue
		}
		switch transform.Normalize(key) {
		case KeyTag, FieldTags:
			b.Member(FieldTags, strings.Split(value, ",")...)
		case KeyCollection, FieldCollections:
			b.Member(FieldCollections, strings.Split(value, ",")...)
		case KeyPriceMin:
			d, err := decimal.NewFromString(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", KeyPriceMin, err)
			}
			priceMin = &d
		case KeyPriceMax:
			d, err := decimal.NewFromString(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", KeyPriceMax, err)
			}
			priceMax = &d
		default:
			b.Equal(key, value)
		}
	}
	if priceMin != nil || priceMax != nil {
		b.PriceBetween(priceMin, priceMax)
	}
	return b.Build()
}

// Where renders clauses as a SQL predicate with $n placeholders starting
// after the given number of existing arguments. It returns "TRUE" for an
// empty clause list.
func Where(clauses []Clause, argOffset int) (string, []any) {
	args := &argList{offset: argOffset}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		parts = append(parts, c.render(args))
	}
	return strings.Join(parts, " AND "), args.values
}

type argList struct {
	offset int
	values []any
}

func (a *argList) add(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(a.offset+len(a.values))
}

var scalarColumns = map[string]string{
	FieldProductType: "product_type",
	FieldVendor:      "vendor",
	FieldBrand:       "brand",
	FieldStatus:      "status",
	FieldHandle:      "handle",
}

func (c EqualClause) render(args *argList) string {
	if col, ok := scalarColumns[c.Field]; ok {
		return fmt.Sprintf("%s = %s", normalized(col), args.add(c.Value))
	}
	if c.Field == FieldAvailable {
		b, err := strconv.ParseBool(c.Value)
		if err != nil {
			return "FALSE"
		}
		return "available = " + args.add(b)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(string_to_array(attributes->>%s, '%s')) AS e WHERE %s = %s)",
		args.add(c.Field), transform.ValueSeparator, normalized("e"), args.add(c.Value))
}

func (c RangeClause) render(args *argList) string {
	var parts []string
	if c.Min != nil {
		parts = append(parts, "price_max >= "+args.add(*c.Min))
	}
	if c.Max != nil {
		parts = append(parts, "price_min <= "+args.add(*c.Max))
	}
	if len(parts) == 0 {
		return "TRUE"
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func (c MembershipClause) render(args *argList) string {
	col := FieldTags
	if c.Field == FieldCollections {
		col = FieldCollections
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS v WHERE %s = ANY(%s))",
		col, normalized("v"), args.add(stringArray(c.Values)))
}

// normalized is the SQL form of transform.Normalize.
func normalized(expr string) string {
	return `lower(regexp_replace(btrim(` + expr + `), '\s+', ' ', 'g'))`
}

func isScalarField(field string) bool {
	_, ok := scalarColumns[field]
	return ok || field == FieldAvailable
}

// expand normalizes values and adds the singular and plural form of each,
// so "shirt" and "shirts" match the same tag.
func expand(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values)*2)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range values {
		n := transform.Normalize(v)
		s := transform.Singular(n)
		add(n)
		add(s)
		if s != "" && !strings.HasSuffix(s, "s") {
			add(s + "s")
		}
	}
	return out
}
