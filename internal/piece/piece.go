// Package piece defines the contract between the host and a connector ("piece"):
// trigger metadata, configurable properties and the enable/disable/run lifecycle.
package piece

import (
	"context"

	"github.com/sirupsen/logrus"

	"pieces/internal/store"
)

// Strategy tells the host how a trigger receives events.
type Strategy string

const (
	// StrategyPolling triggers are invoked on a schedule and fetch changes themselves.
	StrategyPolling Strategy = "POLLING"
	// StrategyWebhook triggers register a callback URL with the vendor and are
	// invoked once per delivered payload.
	StrategyWebhook Strategy = "WEBHOOK"
)

// TriggerMeta is the static description of a trigger.
type TriggerMeta struct {
	Name        string
	DisplayName string
	Description string
	Strategy    Strategy
	Props       []PropDef
	SampleData  any
}

// Context is handed to every lifecycle call.
type Context struct {
	// Props holds the resolved property values of the trigger instance.
	Props Props
	// Store is scoped to the trigger instance.
	Store store.Store
	// WebhookURL is where the vendor should deliver events. Empty for polling triggers.
	WebhookURL string
	// Payload is the delivered webhook body for Run; nil when absent.
	Payload any
	Logger  logrus.FieldLogger
}

// Trigger is implemented by every trigger of every piece.
//
// The host never invokes two lifecycle methods of the same instance concurrently.
type Trigger interface {
	Meta() TriggerMeta

	// OnEnable prepares the instance: registers webhooks or takes an initial snapshot.
	OnEnable(ctx context.Context, tc *Context) error

	// OnDisable undoes OnEnable. It must succeed when there is nothing to undo.
	OnDisable(ctx context.Context, tc *Context) error

	// Run returns the batch of items to feed into the workflow, possibly empty.
	Run(ctx context.Context, tc *Context) ([]any, error)
}

// Piece groups the triggers of one vendor.
type Piece interface {
	// Name returns the piece identifier (e.g., "airtable", "mailchimp").
	Name() string
	DisplayName() string
	Triggers() []Trigger
}

// FindTrigger returns the trigger named name in p.
func FindTrigger(p Piece, name string) (Trigger, bool) {
	for _, t := range p.Triggers() {
		if t.Meta().Name == name {
			return t, true
		}
	}
	return nil, false
}
