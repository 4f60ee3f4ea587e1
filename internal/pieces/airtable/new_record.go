package airtable

import (
	"context"

	"pieces/internal/piece"
	"pieces/internal/store"
)

const newRecordStoreKey = "airtable_new_record_trigger"

// NewRecordTrigger polls a table and emits records not present, field for
// field, in the previous snapshot.
type NewRecordTrigger struct {
	client *Client
}

func (t *NewRecordTrigger) Meta() piece.TriggerMeta {
	return piece.TriggerMeta{
		Name:        "new_record",
		DisplayName: "New Record",
		Description: "Triggers when a new record is added to the selected table.",
		Strategy:    piece.StrategyPolling,
		Props:       commonProps(t.client),
		SampleData:  map[string]any{},
	}
}

func (t *NewRecordTrigger) OnEnable(ctx context.Context, tc *piece.Context) error {
	current, err := t.client.snapshot(ctx, tc.Props)
	if err != nil {
		return err
	}
	return store.PutJSON(ctx, tc.Store, newRecordStoreKey, current)
}

func (t *NewRecordTrigger) OnDisable(ctx context.Context, tc *piece.Context) error {
	return store.PutJSON(ctx, tc.Store, newRecordStoreKey, nil)
}

func (t *NewRecordTrigger) Run(ctx context.Context, tc *piece.Context) ([]any, error) {
	current, err := t.client.snapshot(ctx, tc.Props)
	if err != nil {
		return nil, err
	}

	previous, _, err := store.GetJSON[[]Record](ctx, tc.Store, newRecordStoreKey)
	if err != nil {
		return nil, err
	}

	fresh := NewRecords(previous, current)

	if err := store.PutJSON(ctx, tc.Store, newRecordStoreKey, current); err != nil {
		return nil, err
	}

	items := make([]any, 0, len(fresh))
	for _, r := range fresh {
		items = append(items, r)
	}
	return items, nil
}
