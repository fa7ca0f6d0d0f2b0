package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults_AreValid(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if c.Twilio.Enabled() {
		t.Fatalf("expected simulated placement by default")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "APP_PORT", "STORE_DRIVER", "DIALER_TICK_INTERVAL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresJWTSecret(t *testing.T) {
	c := Defaults()
	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without JWT_SECRET")
	}
	c.Auth.JWTSecret = "secret"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_PartialTwilioCredentials(t *testing.T) {
	c := Defaults()
	c.Twilio.AccountSID = "AC123"
	c.Twilio.AuthToken = "token"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when caller id is missing")
	}
	c.Twilio.CallerID = "+15550000000"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.Twilio.Enabled() {
		t.Fatalf("expected placement capability enabled")
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	c := Defaults()
	c.Store.Driver = StoreDriverPostgres
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aicaller.yaml")
	yml := `
app:
  env: dev
  port: 9000
dialer:
  tick_interval: 250ms
  default_max_concurrent: 5
import:
  policy: reject
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "9100")
	t.Setenv("DIALER_QUALIFY_RATE", "0.25")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Env != "dev" {
		t.Fatalf("expected env from file, got %q", c.App.Env)
	}
	if c.App.Port != 9100 {
		t.Fatalf("expected env port override, got %d", c.App.Port)
	}
	if c.Dialer.TickInterval != 250*time.Millisecond {
		t.Fatalf("expected tick interval from file, got %v", c.Dialer.TickInterval)
	}
	if c.Dialer.DefaultMaxConcurrent != 5 {
		t.Fatalf("expected max concurrent from file, got %d", c.Dialer.DefaultMaxConcurrent)
	}
	if c.Dialer.QualifyRate != 0.25 {
		t.Fatalf("expected qualify rate from env, got %v", c.Dialer.QualifyRate)
	}
	if c.Import.Policy != ImportPolicyReject {
		t.Fatalf("expected reject policy, got %q", c.Import.Policy)
	}
}

func TestLoad_RejectsMalformedEnv(t *testing.T) {
	t.Setenv("DIALER_TICK_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestStatusCallbackURL(t *testing.T) {
	c := Defaults()
	if got := c.StatusCallbackURL("abc"); got != "" {
		t.Fatalf("expected empty callback without public url, got %q", got)
	}
	c.Twilio.PublicBaseURL = "https://dialer.example.com/"
	if got := c.StatusCallbackURL("abc"); got != "https://dialer.example.com/webhooks/twilio/status?call_id=abc" {
		t.Fatalf("unexpected callback url %q", got)
	}
}
