package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pieces/internal/errmodel"
	"pieces/internal/piece"
	"pieces/internal/store"
	"pieces/internal/types"
)

const stateKey = "state"

var (
	// ErrNotEnabled is returned by Run for an instance that was never enabled
	// or has been disabled.
	ErrNotEnabled = errmodel.Validation("not_enabled", "trigger instance is not enabled", nil)
	// ErrAlreadyEnabled is returned by Enable for an enabled instance; disable it first.
	ErrAlreadyEnabled = errmodel.Validation("conflict", "trigger instance is already enabled", nil)
)

// Engine drives trigger lifecycles for instance definitions. It serialises
// hooks per instance and keeps each instance's store apart.
type Engine struct {
	Registry  *piece.Registry
	Store     store.Store
	Secrets   map[string]string
	PublicURL string
	Logger    logrus.FieldLogger

	tracer trace.Tracer
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithSecrets(secrets map[string]string) Option {
	return func(e *Engine) { e.Secrets = secrets }
}

// WithPublicURL sets the externally reachable base URL of the webhook server.
func WithPublicURL(u string) Option {
	return func(e *Engine) { e.PublicURL = strings.TrimRight(u, "/") }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.Logger = l }
}

// NewEngine creates a new trigger engine.
func NewEngine(registry *piece.Registry, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		Registry: registry,
		Store:    st,
		Secrets:  map[string]string{},
		Logger:   logrus.StandardLogger(),
		tracer:   otel.Tracer("pieces/engine"),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WebhookURL is where the vendor should deliver events for inst, or "" when no
// public URL is configured.
func (e *Engine) WebhookURL(inst *types.InstanceDef) string {
	if e.PublicURL == "" {
		return ""
	}
	return e.PublicURL + inst.WebhookPath()
}

// Enable runs the trigger's OnEnable hook and marks the instance enabled.
func (e *Engine) Enable(ctx context.Context, inst *types.InstanceDef) (*types.TriggerResult, error) {
	return e.invoke(ctx, inst, types.HookEnable, nil)
}

// Disable runs the trigger's OnDisable hook and forgets the enabled state.
// Disabling an instance that is not enabled still runs the hook, which must
// treat missing state as nothing to undo.
func (e *Engine) Disable(ctx context.Context, inst *types.InstanceDef) (*types.TriggerResult, error) {
	return e.invoke(ctx, inst, types.HookDisable, nil)
}

// Run invokes the trigger once. payload is the delivered webhook body, or nil.
func (e *Engine) Run(ctx context.Context, inst *types.InstanceDef, payload any) (*types.TriggerResult, error) {
	return e.invoke(ctx, inst, types.HookRun, payload)
}

// IsEnabled reports whether inst has been enabled and not disabled since.
func (e *Engine) IsEnabled(ctx context.Context, inst *types.InstanceDef) (bool, error) {
	st, _, err := store.GetJSON[types.InstanceState](ctx, e.hostStore(inst), stateKey)
	if err != nil {
		return false, err
	}
	return st.Enabled, nil
}

func (e *Engine) hostStore(inst *types.InstanceDef) store.Store {
	return store.Scoped(e.Store, "instances/"+inst.Name)
}

// pieceStore is nested under the host scope so piece keys never meet stateKey.
func (e *Engine) pieceStore(inst *types.InstanceDef) store.Store {
	return store.Scoped(e.hostStore(inst), "store")
}

func (e *Engine) lock(name string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[name]
	if !ok {
		l = &sync.Mutex{}
		e.locks[name] = l
	}
	return l
}

func (e *Engine) invoke(ctx context.Context, inst *types.InstanceDef, hook types.Hook, payload any) (*types.TriggerResult, error) {
	result := &types.TriggerResult{
		ID:        uuid.NewString(),
		Instance:  inst.Name,
		Piece:     inst.Piece,
		Trigger:   inst.Trigger,
		Hook:      hook,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := e.tracer.Start(ctx, "trigger."+string(hook), trace.WithAttributes(
		attribute.String("pieces.instance", inst.Name),
		attribute.String("pieces.piece", inst.Piece),
		attribute.String("pieces.trigger", inst.Trigger),
		attribute.String("pieces.run_id", result.ID),
	))
	defer span.End()

	log := e.Logger.WithFields(logrus.Fields{
		"instance": inst.Name,
		"piece":    inst.Piece,
		"trigger":  inst.Trigger,
		"hook":     hook,
		"run_id":   result.ID,
	})

	l := e.lock(inst.Name)
	l.Lock()
	defer l.Unlock()

	items, err := e.call(ctx, inst, hook, payload, log)

	result.CompletedAt = time.Now().UTC()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
	if err != nil {
		result.Status = types.StatusFailed
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).WithField("duration_ms", result.DurationMs).Error("trigger hook failed")
		return result, err
	}

	result.Status = types.StatusSuccess
	result.Items = items
	span.SetAttributes(attribute.Int("pieces.items", len(items)))
	log.WithFields(logrus.Fields{
		"items":       len(items),
		"duration_ms": result.DurationMs,
	}).Info("trigger hook completed")
	return result, nil
}

func (e *Engine) call(ctx context.Context, inst *types.InstanceDef, hook types.Hook, payload any, log logrus.FieldLogger) ([]any, error) {
	trigger, err := e.Registry.Trigger(inst.Piece, inst.Trigger)
	if err != nil {
		return nil, errmodel.Validation("not_found", err.Error(), nil)
	}
	meta := trigger.Meta()

	hs := e.hostStore(inst)
	state, _, err := store.GetJSON[types.InstanceState](ctx, hs, stateKey)
	if err != nil {
		return nil, fmt.Errorf("reading instance state: %w", err)
	}

	switch hook {
	case types.HookEnable:
		if state.Enabled {
			return nil, ErrAlreadyEnabled
		}
	case types.HookRun:
		if !state.Enabled {
			return nil, ErrNotEnabled
		}
	}

	props, err := NewResolver(inst, e.Secrets).ResolveMap(inst.Props)
	if err != nil {
		return nil, errmodel.Validation("unresolved_props", err.Error(), nil)
	}
	if err := piece.ValidateProps(meta.Props, props); err != nil {
		return nil, err
	}

	tc := &piece.Context{
		Props:   props,
		Store:   e.pieceStore(inst),
		Payload: payload,
		Logger:  log,
	}
	if meta.Strategy == piece.StrategyWebhook {
		tc.WebhookURL = e.WebhookURL(inst)
	}

	switch hook {
	case types.HookEnable:
		if err := trigger.OnEnable(ctx, tc); err != nil {
			return nil, err
		}
		return nil, store.PutJSON(ctx, hs, stateKey, types.InstanceState{
			Enabled:   true,
			Piece:     inst.Piece,
			Trigger:   inst.Trigger,
			EnabledAt: time.Now().UTC(),
		})

	case types.HookDisable:
		if err := trigger.OnDisable(ctx, tc); err != nil {
			return nil, err
		}
		return nil, store.PutJSON(ctx, hs, stateKey, nil)

	case types.HookRun:
		items, err := trigger.Run(ctx, tc)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []any{}
		}
		return items, nil
	}
	return nil, errors.New("unknown hook " + string(hook))
}
