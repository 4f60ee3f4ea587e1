package piece

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ExternalPiece wraps an executable that speaks JSON over stdin/stdout.
// Protocol:
//
//	Describe: run with --describe to get {"name": "...", "display_name": "...", "triggers": [...]}
//	Request:  {"trigger": "<name>", "hook": "on_enable|on_disable|run", "props": {...},
//	           "webhook_url": "...", "payload": ..., "state": {"<store key>": <json>}}
//	Response: {"status": "success|failed", "items": [...], "state": {...}, "error": "..."}
//
// The host loads every store key a trigger declares into "state" before the call
// and writes back whatever the response returns under those keys; null clears a key.
type ExternalPiece struct {
	name        string
	displayName string
	path        string
	triggers    []Trigger
}

type externalDescribe struct {
	Name        string                    `json:"name"`
	DisplayName string                    `json:"display_name"`
	Triggers    []externalTriggerDescribe `json:"triggers"`
}

type externalTriggerDescribe struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
	Strategy    Strategy          `json:"strategy"`
	Props       []externalPropDef `json:"props"`
	SampleData  any               `json:"sample_data"`
	StoreKeys   []string          `json:"store_keys"`
}

type externalPropDef struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Type        PropType `json:"type"`
	Required    bool     `json:"required"`
}

type externalRequest struct {
	Trigger    string                     `json:"trigger"`
	Hook       string                     `json:"hook"`
	Props      Props                      `json:"props"`
	WebhookURL string                     `json:"webhook_url,omitempty"`
	Payload    any                        `json:"payload,omitempty"`
	State      map[string]json.RawMessage `json:"state"`
}

type externalResponse struct {
	Status string                     `json:"status"`
	Items  []any                      `json:"items"`
	State  map[string]json.RawMessage `json:"state"`
	Error  string                     `json:"error"`
}

// LoadExternalPiece loads an external piece from an executable path.
func LoadExternalPiece(path string) (*ExternalPiece, error) {
	cmd := exec.Command(path, "--describe")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running %s --describe: %w", path, err)
	}

	var desc externalDescribe
	if err := json.Unmarshal(out, &desc); err != nil {
		return nil, fmt.Errorf("parsing describe output from %s: %w", path, err)
	}

	if desc.Name == "" {
		desc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	p := &ExternalPiece{
		name:        desc.Name,
		displayName: desc.DisplayName,
		path:        path,
	}
	for _, td := range desc.Triggers {
		if td.Name == "" {
			return nil, fmt.Errorf("plugin %s: trigger without a name", path)
		}
		switch td.Strategy {
		case StrategyPolling, StrategyWebhook:
		default:
			return nil, fmt.Errorf("plugin %s: trigger %q has unknown strategy %q", path, td.Name, td.Strategy)
		}
		props := make([]PropDef, 0, len(td.Props))
		for _, pd := range td.Props {
			props = append(props, PropDef{
				Name:        pd.Name,
				DisplayName: pd.DisplayName,
				Description: pd.Description,
				Type:        pd.Type,
				Required:    pd.Required,
			})
		}
		p.triggers = append(p.triggers, &externalTrigger{
			piece: p,
			meta: TriggerMeta{
				Name:        td.Name,
				DisplayName: td.DisplayName,
				Description: td.Description,
				Strategy:    td.Strategy,
				Props:       props,
				SampleData:  td.SampleData,
			},
			storeKeys: td.StoreKeys,
		})
	}
	return p, nil
}

func (p *ExternalPiece) Name() string        { return p.name }
func (p *ExternalPiece) DisplayName() string { return p.displayName }
func (p *ExternalPiece) Triggers() []Trigger { return p.triggers }

type externalTrigger struct {
	piece     *ExternalPiece
	meta      TriggerMeta
	storeKeys []string
}

func (t *externalTrigger) Meta() TriggerMeta { return t.meta }

func (t *externalTrigger) OnEnable(ctx context.Context, tc *Context) error {
	_, err := t.invoke(ctx, "on_enable", tc)
	return err
}

func (t *externalTrigger) OnDisable(ctx context.Context, tc *Context) error {
	_, err := t.invoke(ctx, "on_disable", tc)
	return err
}

func (t *externalTrigger) Run(ctx context.Context, tc *Context) ([]any, error) {
	items, err := t.invoke(ctx, "run", tc)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	return items, nil
}

func (t *externalTrigger) invoke(ctx context.Context, hook string, tc *Context) ([]any, error) {
	state := make(map[string]json.RawMessage, len(t.storeKeys))
	for _, key := range t.storeKeys {
		v, ok, err := tc.Store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("loading state %q: %w", key, err)
		}
		if ok {
			state[key] = json.RawMessage(v)
		}
	}

	reqJSON, err := json.Marshal(externalRequest{
		Trigger:    t.meta.Name,
		Hook:       hook,
		Props:      tc.Props,
		WebhookURL: tc.WebhookURL,
		Payload:    tc.Payload,
		State:      state,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.piece.path)
	cmd.Stdin = bytes.NewReader(reqJSON)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("plugin %s exited with code %d: %s", t.piece.name, exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("running plugin: %w", err)
	}

	var resp externalResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("parsing plugin response: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("plugin %s %s: %s", t.piece.name, hook, resp.Error)
	}

	for _, key := range t.storeKeys {
		v, ok := resp.State[key]
		if !ok {
			continue
		}
		if v == nil || string(v) == "null" {
			err = tc.Store.Delete(ctx, key)
		} else {
			err = tc.Store.Put(ctx, key, v)
		}
		if err != nil {
			return nil, fmt.Errorf("saving state %q: %w", key, err)
		}
	}
	return resp.Items, nil
}

// LoadExternalPieces discovers and loads all pieces from a directory.
// Plugins are executable files in the directory.
func LoadExternalPieces(dir string, logger logrus.FieldLogger) ([]*ExternalPiece, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading plugins directory: %w", err)
	}

	var pieces []*ExternalPiece
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0111 == 0 {
			continue
		}

		p, err := LoadExternalPiece(path)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("failed to load plugin")
			continue
		}
		pieces = append(pieces, p)
	}

	return pieces, nil
}
