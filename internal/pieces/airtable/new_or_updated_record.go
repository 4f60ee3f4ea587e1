package airtable

import (
	"context"

	"pieces/internal/piece"
	"pieces/internal/store"
)

const newOrUpdatedStoreKey = "airtable_new_or_updated_record_trigger"

// NewOrUpdatedRecordTrigger keys snapshots by record id, so an edited record is
// reported as updated rather than new.
type NewOrUpdatedRecordTrigger struct {
	client *Client
}

func (t *NewOrUpdatedRecordTrigger) Meta() piece.TriggerMeta {
	return piece.TriggerMeta{
		Name:        "new_or_updated_record",
		DisplayName: "New or Updated Record",
		Description: "Triggers when a record is added to or edited in the selected table.",
		Strategy:    piece.StrategyPolling,
		Props:       commonProps(t.client),
		SampleData: Change{
			Change: ChangeUpdated,
			Record: Record{
				ID:          "rec560UJdUtocSouk",
				CreatedTime: "2023-01-12T09:00:00.000Z",
				Fields:      map[string]any{"Name": "Ada"},
			},
		},
	}
}

func (t *NewOrUpdatedRecordTrigger) OnEnable(ctx context.Context, tc *piece.Context) error {
	current, err := t.client.snapshot(ctx, tc.Props)
	if err != nil {
		return err
	}
	return store.PutJSON(ctx, tc.Store, newOrUpdatedStoreKey, current)
}

func (t *NewOrUpdatedRecordTrigger) OnDisable(ctx context.Context, tc *piece.Context) error {
	return store.PutJSON(ctx, tc.Store, newOrUpdatedStoreKey, nil)
}

func (t *NewOrUpdatedRecordTrigger) Run(ctx context.Context, tc *piece.Context) ([]any, error) {
	current, err := t.client.snapshot(ctx, tc.Props)
	if err != nil {
		return nil, err
	}

	previous, _, err := store.GetJSON[[]Record](ctx, tc.Store, newOrUpdatedStoreKey)
	if err != nil {
		return nil, err
	}

	changes := Changes(previous, current)

	if err := store.PutJSON(ctx, tc.Store, newOrUpdatedStoreKey, current); err != nil {
		return nil, err
	}

	items := make([]any, 0, len(changes))
	for _, c := range changes {
		items = append(items, c)
	}
	return items, nil
}
