package ai

import (
	"errors"
	"testing"
)

func testVendors() []VendorConfig {
	return []VendorConfig{
		{Name: "openai", Prefix: "gpt", BaseURL: "https://api.openai.example/v1", APIKey: "sk-openai", CredentialKey: "OPENAI_API_KEY"},
		{Name: "qwen", Prefix: "qwen", BaseURL: "https://dashscope.example/v1", APIKey: "sk-qwen", CredentialKey: "QWEN_API_KEY", DropsTemperature: true},
		{Name: "deepseek", Prefix: "deepseek", BaseURL: "https://api.deepseek.example/v1", APIKey: "sk-deepseek", CredentialKey: "DEEPSEEK_API_KEY"},
	}
}

func TestResolve_PrefixRouting(t *testing.T) {
	reg := NewRegistry(NewOpenAICompatibleClient(), testVendors(), "openai")

	cases := []struct {
		model  string
		vendor string
	}{
		{"gpt-4o", "openai"},
		{"GPT-4o-mini", "openai"},
		{"qwen-turbo", "qwen"},
		{"deepseek-chat", "deepseek"},
	}
	for _, tc := range cases {
		m, err := reg.Resolve(tc.model, 0.7)
		if err != nil {
			t.Fatalf("resolve %q: %v", tc.model, err)
		}
		if m.Vendor() != tc.vendor {
			t.Fatalf("model %q routed to %q, want %q", tc.model, m.Vendor(), tc.vendor)
		}
	}
}

func TestResolve_UnknownPrefixFallsBack(t *testing.T) {
	reg := NewRegistry(NewOpenAICompatibleClient(), testVendors(), "openai")

	m, err := reg.Resolve("llama-3-70b", 0.7)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Vendor() != "openai" {
		t.Fatalf("expected fallback to openai, got %q", m.Vendor())
	}
}

func TestResolve_MissingCredential(t *testing.T) {
	vendors := testVendors()
	vendors[1].APIKey = ""
	reg := NewRegistry(NewOpenAICompatibleClient(), vendors, "openai")

	_, err := reg.Resolve("qwen-plus", 0.7)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestResolve_TemperatureDropped(t *testing.T) {
	reg := NewRegistry(NewOpenAICompatibleClient(), testVendors(), "openai")

	qwen, err := reg.Resolve("qwen-turbo", 0.9)
	if err != nil {
		t.Fatalf("resolve qwen: %v", err)
	}
	if _, ok := qwen.(*StreamingModel).Temperature(); ok {
		t.Fatal("expected qwen to drop temperature")
	}

	gpt, err := reg.Resolve("gpt-4o", 0.9)
	if err != nil {
		t.Fatalf("resolve gpt: %v", err)
	}
	temp, ok := gpt.(*StreamingModel).Temperature()
	if !ok || temp != 0.9 {
		t.Fatalf("expected temperature 0.9 for openai, got %v (set=%v)", temp, ok)
	}
}

func TestResolve_EmptyModelName(t *testing.T) {
	reg := NewRegistry(NewOpenAICompatibleClient(), testVendors(), "openai")
	if _, err := reg.Resolve("  ", 0.7); err == nil {
		t.Fatal("expected error for empty model name")
	}
}
