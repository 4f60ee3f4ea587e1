package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pieces/internal/engine"
	"pieces/internal/errmodel"
	"pieces/internal/loader"
	"pieces/internal/piece"
	"pieces/internal/types"
)

const maxPayloadBytes = 1 << 20

// WebhookServer receives vendor webhook deliveries and runs the matching instance.
type WebhookServer struct {
	engine    *engine.Engine
	instances map[string]*types.InstanceDef
	routes    map[string]*types.InstanceDef // webhook path -> instance
	logger    logrus.FieldLogger
}

// NewWebhookServer creates a new webhook server. Only instances of webhook
// triggers get a route.
func NewWebhookServer(eng *engine.Engine, instances map[string]*types.InstanceDef) *WebhookServer {
	routes := make(map[string]*types.InstanceDef)
	for _, inst := range instances {
		t, err := eng.Registry.Trigger(inst.Piece, inst.Trigger)
		if err != nil || t.Meta().Strategy != piece.StrategyWebhook {
			continue
		}
		routes[inst.WebhookPath()] = inst
	}
	return &WebhookServer{
		engine:    eng,
		instances: instances,
		routes:    routes,
		logger:    eng.Logger,
	}
}

// Handler returns the traced HTTP handler.
func (s *WebhookServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/instances", s.handleListInstances)
	mux.HandleFunc("/", s.handleWebhook)
	return otelhttp.NewHandler(mux, "pieces.webhook")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WebhookServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down webhook server: %w", err)
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *WebhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *WebhookServer) handleListInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errmodel.WriteHTTP(w, r, errmodel.Policy("method_not_allowed", "method not allowed", nil))
		return
	}

	type instanceInfo struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Piece       string `json:"piece"`
		Trigger     string `json:"trigger"`
		Strategy    string `json:"strategy,omitempty"`
		Enabled     bool   `json:"enabled"`
		WebhookPath string `json:"webhook_path,omitempty"`
	}

	infos := make([]instanceInfo, 0, len(s.instances))
	for _, inst := range loader.Sorted(s.instances) {
		info := instanceInfo{
			Name:        inst.Name,
			Description: inst.Description,
			Piece:       inst.Piece,
			Trigger:     inst.Trigger,
		}
		if t, err := s.engine.Registry.Trigger(inst.Piece, inst.Trigger); err == nil {
			info.Strategy = string(t.Meta().Strategy)
		}
		if _, routed := s.routes[inst.WebhookPath()]; routed {
			info.WebhookPath = inst.WebhookPath()
		}
		enabled, err := s.engine.IsEnabled(r.Context(), inst)
		if err != nil {
			errmodel.WriteHTTP(w, r, err)
			return
		}
		info.Enabled = enabled
		infos = append(infos, info)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

func (s *WebhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.routes[r.URL.Path]
	if !ok {
		errmodel.WriteHTTP(w, r, errmodel.Validation("not_found",
			fmt.Sprintf("no instance mapped to path %q", r.URL.Path), nil))
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		// Mailchimp checks the URL with a GET before accepting it.
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		errmodel.WriteHTTP(w, r, errmodel.Policy("method_not_allowed", "method not allowed", nil))
		return
	}

	payload, err := decodePayload(r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	result, err := s.engine.Run(r.Context(), inst, payload)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// decodePayload reads a JSON or form-encoded body. An empty body is a nil payload.
func decodePayload(r *http.Request) (any, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return nil, errmodel.Validation("payload_too_large", "webhook body exceeds 1MiB", nil)
	}
	if len(body) == 0 {
		return nil, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, errmodel.Validation("invalid_body", "invalid form body: "+err.Error(), nil)
		}
		return decodeForm(values), nil
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errmodel.Validation("invalid_body", "invalid JSON body: "+err.Error(), nil)
	}
	return payload, nil
}
