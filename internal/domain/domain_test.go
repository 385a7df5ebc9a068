package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  any
		wantErr bool
	}{
		{
			name:   "valid product",
			entity: &Product{ExternalID: 1, Handle: "shirt", Title: "Shirt"},
		},
		{
			name:    "product without handle",
			entity:  &Product{ExternalID: 1, Title: "Shirt"},
			wantErr: true,
		},
		{
			name:    "product with zero id",
			entity:  &Product{Handle: "shirt", Title: "Shirt"},
			wantErr: true,
		},
		{
			name:    "collection with negative count",
			entity:  &Collection{ExternalID: 1, Handle: "summer", Title: "Summer", ProductsCount: -1},
			wantErr: true,
		},
		{
			name: "valid order",
			entity: &Order{
				ExternalID: 1, Name: "#1001", Email: "a@example.com", Currency: "EUR",
				TotalPrice: decimal.RequireFromString("10"),
				LineItems:  []LineItem{{Title: "Shirt", Quantity: 1}},
			},
		},
		{
			name:    "order with bad email",
			entity:  &Order{ExternalID: 1, Name: "#1001", Email: "not-an-email"},
			wantErr: true,
		},
		{
			name:    "order with bad currency",
			entity:  &Order{ExternalID: 1, Name: "#1001", Currency: "EURO"},
			wantErr: true,
		},
		{
			name:    "order with untitled line item",
			entity:  &Order{ExternalID: 1, Name: "#1001", LineItems: []LineItem{{Quantity: 1}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entity)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRecord))
		})
	}
}

func TestJobState_Resumable(t *testing.T) {
	cursor := "c1"

	tests := []struct {
		name  string
		state JobState
		want  bool
	}{
		{name: "never run", state: *NewJobState("full_sync"), want: false},
		{name: "in progress with cursor", state: JobState{Cursor: &cursor, Status: JobStatusInProgress}, want: true},
		{name: "failed with cursor", state: JobState{Cursor: &cursor, Status: JobStatusFailed}, want: true},
		{name: "failed on first page", state: JobState{Status: JobStatusFailed}, want: false},
		{name: "completed", state: JobState{Status: JobStatusCompleted, LastRunAt: time.Now()}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Resumable())
		})
	}
}
