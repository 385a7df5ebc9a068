// Package transform maps upstream records to the local catalog model.
//
// Every function here is pure: no network, no store, no clock. A record the
// mapping cannot represent yields an error wrapping domain.ErrMalformedRecord;
// callers skip that record and keep the rest of the batch. Missing optional
// scalars become empty strings or nil so stored rows always have the same shape.
package transform
