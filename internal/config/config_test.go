package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("BACKEND_API_KEY", "test-backend-key")
	defer os.Unsetenv("BACKEND_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BackendAPIKey != "test-backend-key" {
		t.Errorf("Expected BackendAPIKey 'test-backend-key', got '%s'", cfg.BackendAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("BACKEND_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("BACKEND_API_KEY", "test-backend-key")
	defer os.Unsetenv("BACKEND_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.BackendModel != "models/gemini-2.0-flash-live-001" {
		t.Errorf("Expected default BackendModel 'models/gemini-2.0-flash-live-001', got '%s'", cfg.BackendModel)
	}

	if cfg.BackendVoice != "Charon" {
		t.Errorf("Expected default BackendVoice 'Charon', got '%s'", cfg.BackendVoice)
	}

	if cfg.FallbackSampleRate != 24000 {
		t.Errorf("Expected default FallbackSampleRate 24000, got %d", cfg.FallbackSampleRate)
	}

	if cfg.PrimingOffsetMs != 80 {
		t.Errorf("Expected default PrimingOffsetMs 80, got %d", cfg.PrimingOffsetMs)
	}

	if cfg.IdleGraceMs != 200 {
		t.Errorf("Expected default IdleGraceMs 200, got %d", cfg.IdleGraceMs)
	}

	if cfg.IdlePollMs != 150 {
		t.Errorf("Expected default IdlePollMs 150, got %d", cfg.IdlePollMs)
	}

	if cfg.OutputSampleRate != 24000 {
		t.Errorf("Expected default OutputSampleRate 24000, got %d", cfg.OutputSampleRate)
	}

	if cfg.AudioBufferSize != 16384 {
		t.Errorf("Expected default AudioBufferSize 16384, got %d", cfg.AudioBufferSize)
	}

	if cfg.OutputGain != 1.0 {
		t.Errorf("Expected default OutputGain 1.0, got %f", cfg.OutputGain)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("BACKEND_API_KEY", "test-backend-key")
	os.Setenv("IDLE_GRACE_MS", "350")
	defer os.Unsetenv("BACKEND_API_KEY")
	defer os.Unsetenv("IDLE_GRACE_MS")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.BackendAPIKey != "test-backend-key" {
		t.Errorf("Expected BackendAPIKey 'test-backend-key', got '%s'", cfg.BackendAPIKey)
	}

	if cfg.IdleGraceMs != 350 {
		t.Errorf("Expected IdleGraceMs 350 from environment, got %d", cfg.IdleGraceMs)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	os.Setenv("BACKEND_API_KEY", "test-backend-key")
	defer os.Unsetenv("BACKEND_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}

	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Setenv("BACKEND_API_KEY", "test-backend-key")
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("BACKEND_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check observability defaults
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
