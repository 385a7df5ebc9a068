// Package reconcile resolves free-text relation references in a batch of
// transformed entities to stable identifiers.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/transform"
)

// CollectionLookup returns every known collection as title -> handle.
type CollectionLookup interface {
	HandlesByTitle(ctx context.Context) (map[string]string, error)
}

type Report struct {
	Resolved   int
	Unresolved int
}

// CollectionReconciler turns Product.CollectionNames into CollectionHandles.
type CollectionReconciler struct {
	lookup CollectionLookup
	logger *slog.Logger
}

func NewCollectionReconciler(lookup CollectionLookup, logger *slog.Logger) *CollectionReconciler {
	return &CollectionReconciler{
		lookup: lookup,
		logger: logger.With("stage", "reconcile"),
	}
}

// Reconcile loads the title map once for the batch so collections created
// since the previous batch resolve without a restart. Unknown titles are
// dropped with a warning.
func (r *CollectionReconciler) Reconcile(ctx context.Context, products []*domain.Product) (Report, error) {
	var report Report
	if len(products) == 0 {
		return report, nil
	}

	raw, err := r.lookup.HandlesByTitle(ctx)
	if err != nil {
		return report, fmt.Errorf("load collection handles: %w", err)
	}

	byTitle := make(map[string]string, len(raw))
	for title, handle := range raw {
		key := transform.Normalize(title)
		if prev, ok := byTitle[key]; ok {
			r.logger.Warn("collections share a title", "title", key, "handles", []string{prev, handle})
			if prev <= handle {
				continue
			}
		}
		byTitle[key] = handle
	}

	for _, p := range products {
		handles := make([]string, 0, len(p.CollectionNames))
		seen := make(map[string]struct{}, len(p.CollectionNames))

		for _, name := range p.CollectionNames {
			handle, ok := byTitle[transform.Normalize(name)]
			if !ok {
				report.Unresolved++
				r.logger.Warn("dropping unresolved collection reference",
					"product_id", p.ExternalID,
					"collection", name,
					"error", domain.ErrUnresolvedReference,
				)
				continue
			}
			if _, dup := seen[handle]; dup {
				continue
			}
			seen[handle] = struct{}{}
			handles = append(handles, handle)
			report.Resolved++
		}

		p.CollectionHandles = handles
	}

	return report, nil
}
