package config

import (
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateDispatch(t *testing.T) {
	cfg := Defaults()
	cfg.Dispatch.DefaultTimeout = 0
	cfg.Dispatch.DefaultCount = 0
	cfg.Dispatch.MaxOutputBytes = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "dispatch.default_timeout must be > 0")
	assertContains(t, err.Error(), "dispatch.default_count must be > 0")
	assertContains(t, err.Error(), "dispatch.max_output_bytes must be > 0")
}

func TestValidateEmptyProvidersAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Providers = nil
	if err := Validate(cfg); err != nil {
		t.Fatalf("empty chain should validate: %v", err)
	}
}

func TestValidateDuplicateProvider(t *testing.T) {
	cfg := Defaults()
	cfg.Providers = []ProviderConfig{
		{Name: "brave", Transport: "exec", Command: "node"},
		{Name: "brave", Transport: "exec", Command: "node"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "duplicate provider name")
}

func TestValidateProviderNameRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Providers = []ProviderConfig{{Transport: "exec", Command: "x"}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "providers[0].name must not be empty")
}

func TestValidateReservedName(t *testing.T) {
	cfg := Defaults()
	cfg.Providers = []ProviderConfig{{Name: "auto", Transport: "exec", Command: "x"}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "is reserved")
}

func TestValidateTransports(t *testing.T) {
	tests := []struct {
		name string
		p    ProviderConfig
		want string
	}{
		{"exec without command", ProviderConfig{Name: "a", Transport: "exec"}, "command is required"},
		{"http without url", ProviderConfig{Name: "a", Transport: "http"}, "url must not be empty"},
		{"http relative url", ProviderConfig{Name: "a", Transport: "http", URL: "/search"}, "absolute http(s) URL"},
		{"http bad method", ProviderConfig{Name: "a", Transport: "http", URL: "http://x", Method: "PUT"}, "method \"PUT\" is invalid"},
		{"mcp without endpoint", ProviderConfig{Name: "a", Transport: "mcp", Tool: "search"}, "requires command or url"},
		{"mcp without tool", ProviderConfig{Name: "a", Transport: "mcp", Command: "srv"}, "tool is required"},
		{"mcp http with dir", ProviderConfig{Name: "a", Transport: "mcp", URL: "http://x/mcp", Tool: "search", Dir: "skills/x"}, "dir only applies to mcp over stdio"},
		{"unknown transport", ProviderConfig{Name: "a", Transport: "grpc"}, "transport \"grpc\" is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Providers = []ProviderConfig{tt.p}
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateProviderParamsAndModes(t *testing.T) {
	cfg := Defaults()
	cfg.Providers = []ProviderConfig{{
		Name:      "a",
		Transport: "exec",
		Command:   "x",
		Accepts:   []string{"language"},
		Params:    map[string]string{"region": "--region"},
		Modes:     []string{"live"},
		Defaults:  ProviderDefaults{Mode: "past", Count: -1},
		MaxCount:  -2,
		Timeout:   -time.Second,
	}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "accepts \"language\"")
	assertContains(t, msg, "params key \"region\"")
	assertContains(t, msg, "mode \"live\" is invalid")
	assertContains(t, msg, "defaults.mode \"past\"")
	assertContains(t, msg, "defaults.count must be >= 0")
	assertContains(t, msg, "max_count must be >= 0")
	assertContains(t, msg, "timeout must be >= 0")
}

func TestValidateLoggerAndTracer(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "loud"
	cfg.Logger.Format = "xml"
	cfg.Tracer.Enabled = true
	cfg.Tracer.Exporter = "jaeger"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "logger.level \"loud\" is invalid")
	assertContains(t, err.Error(), "logger.format \"xml\" is invalid")
	assertContains(t, err.Error(), "tracer.exporter \"jaeger\" is invalid")
}

func TestValidateHistoryPath(t *testing.T) {
	cfg := Defaults()
	cfg.History.Enabled = true
	cfg.History.Path = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "history.path must not be empty")
}

func TestValidateScorer(t *testing.T) {
	cfg := Defaults()
	cfg.Scorer.Timeout = 0
	cfg.Scorer.OutputStream = "fd3"
	cfg.Scorer.Fields.Verdict = ""
	cfg.Scorer.RatePerSecond = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "scorer.timeout must be > 0")
	assertContains(t, err.Error(), "scorer.output_stream \"fd3\"")
	assertContains(t, err.Error(), "scorer.fields")
	assertContains(t, err.Error(), "scorer.rate_per_second")
}

func TestValidationErrorAggregates(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("fresh ValidationError should have no errors")
	}
	ve.Add("first %d", 1)
	ve.Add("second")
	if len(ve.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(ve.Errors))
	}
	assertContains(t, ve.Error(), "config validation failed:\n  - first 1\n  - second")
}
