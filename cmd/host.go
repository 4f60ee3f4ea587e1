package cmd

import (
	"context"
	"fmt"
	"os"

	"pieces/internal/engine"
	"pieces/internal/httpclient"
	"pieces/internal/loader"
	"pieces/internal/piece"
	"pieces/internal/pieces/airtable"
	"pieces/internal/pieces/mailchimp"
	"pieces/internal/store"
	"pieces/internal/telemetry"
	"pieces/internal/types"
)

// defaultRegistry registers the built-in pieces and every external piece in pluginsDir.
func defaultRegistry(pluginsDir string) (*piece.Registry, error) {
	hc := httpclient.New(httpclient.WithLogger(logger))

	r := piece.NewRegistry()
	r.Register(airtable.New(hc))
	r.Register(mailchimp.New(hc))

	if pluginsDir == "" {
		return r, nil
	}
	if _, err := os.Stat(pluginsDir); os.IsNotExist(err) {
		return r, nil
	}
	external, err := piece.LoadExternalPieces(pluginsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("loading external pieces: %w", err)
	}
	for _, p := range external {
		if err := r.Register(p); err != nil {
			logger.WithError(err).WithField("dir", pluginsDir).Warn("skipping external piece")
		}
	}
	return r, nil
}

// host bundles what commands that touch instances need.
type host struct {
	registry  *piece.Registry
	store     store.Store
	engine    *engine.Engine
	instances map[string]*types.InstanceDef
	shutdown  func(context.Context) error
}

func openHost(ctx context.Context) (*host, error) {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: Version,
		UseStdout:      cfg.Telemetry.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialising telemetry: %w", err)
	}

	registry, err := defaultRegistry(cfg.PluginsDir)
	if err != nil {
		return nil, err
	}

	instances, err := loader.LoadInstances(cfg.InstancesDir)
	if err != nil {
		return nil, fmt.Errorf("loading instances: %w", err)
	}

	secrets, err := engine.LoadSecretsIfExists(cfg.SecretsFile)
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	eng := engine.NewEngine(registry, st,
		engine.WithSecrets(secrets),
		engine.WithPublicURL(cfg.Server.PublicURL),
		engine.WithLogger(logger),
	)

	return &host{
		registry:  registry,
		store:     st,
		engine:    eng,
		instances: instances,
		shutdown:  shutdown,
	}, nil
}

func (h *host) instance(name string) (*types.InstanceDef, error) {
	inst, ok := h.instances[name]
	if !ok {
		return nil, fmt.Errorf("instance %q not found in %s", name, cfg.InstancesDir)
	}
	return inst, nil
}

// selectInstances returns the named instances, or all of them when all is set.
func (h *host) selectInstances(names []string, all bool) ([]*types.InstanceDef, error) {
	if all {
		return loader.Sorted(h.instances), nil
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("name at least one instance or pass --all")
	}
	out := make([]*types.InstanceDef, 0, len(names))
	for _, name := range names {
		inst, err := h.instance(name)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (h *host) Close() {
	if err := h.store.Close(); err != nil {
		logger.WithError(err).Warn("closing store")
	}
	if err := h.shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("flushing traces")
	}
}
