package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredential signals that the vendor selected for a model has no
// API key configured.
var ErrMissingCredential = errors.New("missing provider credential")

// VendorConfig describes one completion vendor in the registry.
// DropsTemperature marks vendors whose API ignores sampling temperature; the
// resolved ChatConfig then omits the field entirely.
type VendorConfig struct {
	Name             string
	Prefix           string
	BaseURL          string
	APIKey           string
	CredentialKey    string
	DropsTemperature bool
}

// Registry maps a model identifier to a concrete streaming client by prefix
// match. The set of vendors is closed at construction; an unrecognized prefix
// routes to the fallback vendor.
type Registry struct {
	client   *OpenAICompatibleClient
	vendors  []VendorConfig
	fallback string
}

func NewRegistry(client *OpenAICompatibleClient, vendors []VendorConfig, fallback string) *Registry {
	return &Registry{client: client, vendors: vendors, fallback: fallback}
}

// Model is a resolved completion target. Consuming Stream is the only way to
// drive generation; no buffering is guaranteed beyond the vendor's own.
type Model interface {
	Vendor() string
	Stream(ctx context.Context, messages []ChatMessage, onChunk func(string) error) (string, error)
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Resolve picks the vendor for modelName and returns a ready-to-call Model.
// Prefix matching is case-insensitive.
func (r *Registry) Resolve(modelName string, temperature float64) (Model, error) {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return nil, fmt.Errorf("model name is empty")
	}

	vendor, ok := r.match(name)
	if !ok {
		vendor, ok = r.byName(r.fallback)
		if !ok {
			return nil, fmt.Errorf("no fallback vendor registered")
		}
	}
	if strings.TrimSpace(vendor.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s (set %s)", ErrMissingCredential, vendor.Name, vendor.CredentialKey)
	}

	cfg := ChatConfig{
		Vendor:  vendor.Name,
		BaseURL: vendor.BaseURL,
		APIKey:  vendor.APIKey,
		Model:   modelName,
	}
	if !vendor.DropsTemperature {
		t := temperature
		cfg.Temperature = &t
	}
	return &StreamingModel{client: r.client, cfg: cfg}, nil
}

func (r *Registry) match(lowerModel string) (VendorConfig, bool) {
	for _, v := range r.vendors {
		if v.Prefix != "" && strings.HasPrefix(lowerModel, v.Prefix) {
			return v, true
		}
	}
	return VendorConfig{}, false
}

func (r *Registry) byName(name string) (VendorConfig, bool) {
	for _, v := range r.vendors {
		if v.Name == name {
			return v, true
		}
	}
	return VendorConfig{}, false
}

// StreamingModel is the registry's Model implementation, backed by the
// shared OpenAI-compatible client.
type StreamingModel struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func (m *StreamingModel) Vendor() string {
	return m.cfg.Vendor
}

// Temperature returns the effective sampling temperature and whether the
// vendor honors it.
func (m *StreamingModel) Temperature() (float64, bool) {
	if m.cfg.Temperature == nil {
		return 0, false
	}
	return *m.cfg.Temperature, true
}

func (m *StreamingModel) Stream(ctx context.Context, messages []ChatMessage, onChunk func(string) error) (string, error) {
	return m.client.StreamComplete(ctx, m.cfg, messages, onChunk)
}

func (m *StreamingModel) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	return m.client.Complete(ctx, m.cfg, messages)
}
