package types

import (
	"strings"
	"time"
)

// InstanceDef represents a parsed YAML trigger instance: one trigger of one
// piece with its property values.
type InstanceDef struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Piece       string            `yaml:"piece" json:"piece"`
	Trigger     string            `yaml:"trigger" json:"trigger"`
	Props       map[string]any    `yaml:"props" json:"props"`
	Webhook     *WebhookDef       `yaml:"webhook,omitempty" json:"webhook,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// WebhookDef configures where a webhook instance receives deliveries.
type WebhookDef struct {
	Path string `yaml:"path" json:"path"`
}

// WebhookPath returns the server path deliveries for this instance arrive on.
func (d *InstanceDef) WebhookPath() string {
	if d.Webhook != nil && d.Webhook.Path != "" {
		return "/" + strings.TrimLeft(d.Webhook.Path, "/")
	}
	return "/webhooks/" + d.Name
}

// Hook names a trigger lifecycle call.
type Hook string

const (
	HookEnable  Hook = "on_enable"
	HookDisable Hook = "on_disable"
	HookRun     Hook = "run"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// TriggerResult holds the outcome of one lifecycle call.
type TriggerResult struct {
	ID          string    `json:"id"`
	Instance    string    `json:"instance"`
	Piece       string    `json:"piece"`
	Trigger     string    `json:"trigger"`
	Hook        Hook      `json:"hook"`
	Status      string    `json:"status"`
	Items       []any     `json:"items,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// InstanceState is what the host remembers about an enabled instance.
type InstanceState struct {
	Enabled   bool      `json:"enabled"`
	Piece     string    `json:"piece"`
	Trigger   string    `json:"trigger"`
	EnabledAt time.Time `json:"enabled_at"`
}
