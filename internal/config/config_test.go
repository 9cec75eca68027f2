package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("transaction-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DeploymentEnv != EnvDevelopment {
		t.Fatalf("expected development env, got %q", cfg.DeploymentEnv)
	}
	if cfg.AuditAckTimeout != 10*time.Second {
		t.Fatalf("expected 10s ack timeout, got %v", cfg.AuditAckTimeout)
	}
	if cfg.JWTExpiresIn != 24*time.Hour {
		t.Fatalf("expected 24h JWT expiry, got %v", cfg.JWTExpiresIn)
	}
	if cfg.ReconnectWait != time.Second {
		t.Fatalf("expected 1s reconnect wait, got %v", cfg.ReconnectWait)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SERVICE_NAME", "audit-service")
	t.Setenv("LEDGER_AUDIT_ACK_TIMEOUT", "5s")

	cfg, err := Load("transaction-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.ServiceName != "audit-service" {
		t.Fatalf("expected audit-service, got %q", cfg.ServiceName)
	}
	if cfg.AuditAckTimeout != 5*time.Second {
		t.Fatalf("expected 5s, got %v", cfg.AuditAckTimeout)
	}
}

func TestValidateRejectsBadEnv(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "staging")
	if _, err := Load("transaction-service"); err == nil {
		t.Fatal("expected error for unknown DEPLOYMENT_ENV")
	}
}

func TestValidateJWTProductionSecretLength(t *testing.T) {
	cfg := Config{DeploymentEnv: EnvProduction, JWTSecret: "short", JWTExpiresIn: time.Hour}
	if err := cfg.ValidateJWT(); err == nil {
		t.Fatal("expected error for short production secret")
	}

	cfg.JWTSecret = strings.Repeat("s", MinJWTSecretLen)
	if err := cfg.ValidateJWT(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateJWTDevelopmentAllowsEmptySecret(t *testing.T) {
	cfg := Config{DeploymentEnv: EnvDevelopment, JWTExpiresIn: time.Hour}
	if err := cfg.ValidateJWT(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	cfg, err := Load("transaction-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origin: %q", cfg.AllowedOrigins[1])
	}
}
