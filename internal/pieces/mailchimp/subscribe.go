package mailchimp

import (
	"context"

	"github.com/sirupsen/logrus"

	"pieces/internal/errmodel"
	"pieces/internal/piece"
	"pieces/internal/store"
)

const webhookDataStoreKey = "mail_chimp_webhook_data"

// subscription is what OnEnable remembers for OnDisable.
type subscription struct {
	ID     string `json:"id"`
	ListID string `json:"listId"`
}

// SubscribeTrigger relays Mailchimp "subscribe" webhooks of one audience.
type SubscribeTrigger struct {
	client *Client
}

func (t *SubscribeTrigger) Meta() piece.TriggerMeta {
	return piece.TriggerMeta{
		Name:        "subscribe",
		DisplayName: "Member subscribed to Audience",
		Description: "Runs when an Audience subscriber is added.",
		Strategy:    piece.StrategyWebhook,
		Props:       []piece.PropDef{authProp(), listIDProp(t.client)},
		SampleData: map[string]any{
			"type":     "subscribe",
			"fired_at": "2009-03-26 21:35:57",
			"data": map[string]any{
				"id":         "8a25ff1d98",
				"list_id":    "a6b5da1054",
				"email":      "api@mailchimp.com",
				"email_type": "html",
				"ip_opt":     "10.20.10.30",
				"ip_signup":  "10.20.10.30",
				"merges": map[string]any{
					"EMAIL":     "api@mailchimp.com",
					"FNAME":     "Mailchimp",
					"LNAME":     "API",
					"INTERESTS": "Group1,Group2",
				},
			},
		},
	}
}

func (t *SubscribeTrigger) OnEnable(ctx context.Context, tc *piece.Context) error {
	token, err := tc.Props.AccessToken("authentication")
	if err != nil {
		return err
	}
	listID, ok := tc.Props.String("list_id")
	if !ok {
		return errmodel.Validation("missing_prop", "list_id is required", nil)
	}
	if tc.WebhookURL == "" {
		return errmodel.Validation("missing_webhook_url", "no public webhook URL configured", nil)
	}

	server, err := t.client.ServerPrefix(ctx, token)
	if err != nil {
		return err
	}

	wh, err := t.client.CreateWebhook(ctx, server, token, listID, tc.WebhookURL)
	if err != nil {
		return err
	}
	logger(tc).WithFields(logrus.Fields{"webhook_id": wh.ID, "list_id": listID}).Info("mailchimp webhook registered")

	return store.PutJSON(ctx, tc.Store, webhookDataStoreKey, subscription{ID: wh.ID, ListID: listID})
}

// OnDisable deletes the remote webhook and forgets it, so a second disable is a no-op.
func (t *SubscribeTrigger) OnDisable(ctx context.Context, tc *piece.Context) error {
	sub, ok, err := store.GetJSON[subscription](ctx, tc.Store, webhookDataStoreKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	token, err := tc.Props.AccessToken("authentication")
	if err != nil {
		return err
	}
	server, err := t.client.ServerPrefix(ctx, token)
	if err != nil {
		return err
	}
	if err := t.client.DeleteWebhook(ctx, server, token, sub.ListID, sub.ID); err != nil {
		return err
	}
	logger(tc).WithField("webhook_id", sub.ID).Info("mailchimp webhook removed")

	return store.PutJSON(ctx, tc.Store, webhookDataStoreKey, nil)
}

func (t *SubscribeTrigger) Run(_ context.Context, tc *piece.Context) ([]any, error) {
	if tc.Payload == nil {
		return []any{}, nil
	}
	return []any{tc.Payload}, nil
}

func logger(tc *piece.Context) logrus.FieldLogger {
	if tc.Logger != nil {
		return tc.Logger
	}
	return logrus.StandardLogger()
}
