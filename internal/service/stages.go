package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog_sync/internal/domain"
)

type outcome int

const (
	outcomeOK outcome = iota
	outcomeSkip
	outcomeAbort
)

// classify decides what a stage error means for the run: record-level
// problems skip the record, everything else aborts the run.
func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, domain.ErrMalformedRecord),
		errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrUnresolvedReference):
		return outcomeSkip
	default:
		return outcomeAbort
	}
}

// validated runs entity validation before the store write.
func validated[E any](upsert func(ctx context.Context, entity E) error) func(ctx context.Context, entity E) error {
	return func(ctx context.Context, entity E) error {
		if err := domain.Validate(entity); err != nil {
			return err
		}
		return upsert(ctx, entity)
	}
}

// updatedSince limits a pass to records changed since the previous
// completed pass started. The first pass is unfiltered.
func updatedSince(state *domain.JobState) string {
	if state.Watermark == nil {
		return ""
	}
	return fmt.Sprintf("updated_at:>='%s'", state.Watermark.UTC().Format(time.RFC3339))
}

func productEvent(p *domain.Product) domain.Event {
	return domain.Event{
		Kind:       domain.EntityProduct,
		Action:     domain.EventUpserted,
		ExternalID: p.ExternalID,
		Handle:     p.Handle,
	}
}

func collectionEvent(c *domain.Collection) domain.Event {
	return domain.Event{
		Kind:       domain.EntityCollection,
		Action:     domain.EventUpserted,
		ExternalID: c.ExternalID,
		Handle:     c.Handle,
	}
}

func orderEvent(o *domain.Order) domain.Event {
	return domain.Event{
		Kind:       domain.EntityOrder,
		Action:     domain.EventUpserted,
		ExternalID: o.ExternalID,
	}
}
