package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingDatabaseAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_UnknownEmbeddingProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "cohere"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown embedding provider")
	}

	expected := `embedding.provider must be "openai", got "cohere"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_DuplicateCollection(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Collections = []CollectionConfig{
		{Name: "emails", Weight: 1.0},
		{Name: "emails", Weight: 0.5},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate collection name")
	}
}

func TestValidate_NegativeCollectionWeight(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Collections = []CollectionConfig{{Name: "emails", Weight: -0.5}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for negative collection weight")
	}
}

func TestValidate_DefaultCollectionNotConfigured(t *testing.T) {
	cfg := validConfig()
	cfg.Search.DefaultCollection = "missing"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unconfigured default collection")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("expected Provider='openai', got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.Embedding.MaxAttempts)
	}
	if cfg.Embedding.RateLimitCooldownSec != 5 {
		t.Errorf("expected RateLimitCooldownSec=5, got %d", cfg.Embedding.RateLimitCooldownSec)
	}
	if cfg.Embedding.CallTimeoutSec != 10 {
		t.Errorf("expected Embedding.CallTimeoutSec=10, got %d", cfg.Embedding.CallTimeoutSec)
	}
	if cfg.Search.DefaultCollection != "emails" {
		t.Errorf("expected DefaultCollection='emails', got %q", cfg.Search.DefaultCollection)
	}
	if len(cfg.Search.Collections) != 1 || cfg.Search.Collections[0].Name != "emails" {
		t.Errorf("expected implicit emails collection, got %+v", cfg.Search.Collections)
	}
	if cfg.Search.CallTimeoutSec != 5 {
		t.Errorf("expected CallTimeoutSec=5, got %d", cfg.Search.CallTimeoutSec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-large", Dimensions: 3072, MaxAttempts: 5,
		},
		Search: SearchConfig{
			DefaultCollection: "messages",
			Collections:       []CollectionConfig{{Name: "messages", Weight: 0.8}},
			CallTimeoutSec:    2,
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("expected custom model kept, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 3072 {
		t.Errorf("expected Dimensions=3072, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.DefaultCollection != "messages" {
		t.Errorf("expected DefaultCollection='messages', got %q", cfg.Search.DefaultCollection)
	}
	if cfg.Search.CallTimeoutSec != 2 {
		t.Errorf("expected CallTimeoutSec=2, got %d", cfg.Search.CallTimeoutSec)
	}
}
