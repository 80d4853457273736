package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Workspace string           `yaml:"workspace"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Providers []ProviderConfig `yaml:"providers"`
	Logger    LoggerConfig     `yaml:"logger"`
	Tracer    TracerConfig     `yaml:"tracer"`
	History   HistoryConfig    `yaml:"history"`
	Scorer    ScorerConfig     `yaml:"scorer"`
	Includes  []string         `yaml:"includes,omitempty"`
}

// DispatchConfig holds fallback controller settings.
type DispatchConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	DefaultCount   int           `yaml:"default_count"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	KillGrace      time.Duration `yaml:"kill_grace"` // pipe drain bound after a timed-out process is killed
}

// ProviderConfig declares one search provider. Order in the list is the
// fallback order.
type ProviderConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "exec", "http" or "mcp"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Dir       string            `yaml:"dir,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Method    string            `yaml:"method,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Tool      string            `yaml:"tool,omitempty"`
	Accepts   []string          `yaml:"accepts,omitempty"`
	Params    map[string]string `yaml:"params,omitempty"` // param -> flag or field name
	Modes     []string          `yaml:"modes,omitempty"`
	Defaults  ProviderDefaults  `yaml:"defaults"`
	MaxCount  int               `yaml:"max_count,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
}

// ProviderDefaults holds the values used when a query does not supply one.
type ProviderDefaults struct {
	Count   int    `yaml:"count,omitempty"`
	Mode    string `yaml:"mode,omitempty"`
	Content bool   `yaml:"content,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// HistoryConfig holds dispatch history store settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ScorerConfig holds settings for the external subject scorer.
type ScorerConfig struct {
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args,omitempty"`
	Dir           string            `yaml:"dir,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Timeout       time.Duration     `yaml:"timeout"`
	OutputStream  string            `yaml:"output_stream"` // "stdout" or "stderr"
	Fields        ScorerFields      `yaml:"fields"`
	RatePerSecond float64           `yaml:"rate_per_second"`
	Breaker       BreakerConfig     `yaml:"breaker"`
}

// ScorerFields names the keys the scorer's JSON output must carry.
type ScorerFields struct {
	Score     string `yaml:"score"`
	Verdict   string `yaml:"verdict"`
	Rationale string `yaml:"rationale"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// defaultWorkspace returns $HOME/.openclaw/workspace.
// Falls back to "./workspace" if $HOME cannot be determined.
func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./workspace"
	}
	return filepath.Join(home, ".openclaw", "workspace")
}

// defaultDataDir returns the persistent data directory under $HOME/.unisearch.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".unisearch")
}

// DefaultProviders returns the built-in serper, brave, bing chain.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:      "serper",
			Transport: "exec",
			Command:   ".venv/bin/python",
			Args:      []string{"scripts/search.py"},
			Dir:       "skills/openclaw-serper",
			Accepts:   []string{"mode"},
			Params:    map[string]string{"query": "-q", "mode": "--mode"},
			Modes:     []string{"default", "current"},
			Defaults:  ProviderDefaults{Mode: "default"},
		},
		{
			Name:      "brave",
			Transport: "exec",
			Command:   "node",
			Args:      []string{"search.js", "{{query}}"},
			Dir:       "skills/brave-search",
			Accepts:   []string{"count", "content"},
			Params:    map[string]string{"count": "-n", "content": "--content"},
			Defaults:  ProviderDefaults{Count: 5},
		},
		{
			Name:      "bing",
			Transport: "exec",
			Command:   "python3",
			Args:      []string{"scripts/search.py", "{{query}}"},
			Dir:       "skills/bing-search",
		},
	}
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Workspace: defaultWorkspace(),
		Dispatch: DispatchConfig{
			DefaultTimeout: 30 * time.Second,
			DefaultCount:   5,
			MaxOutputBytes: 4 << 20,
			KillGrace:      2 * time.Second,
		},
		Providers: DefaultProviders(),
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    filepath.Join(defaultDataDir(), "history.db"),
		},
		Scorer: ScorerConfig{
			Command:      "python3",
			Args:         []string{"scripts/analyze.py", "--input", "{{input}}"},
			Dir:          "skills/equity-analyst",
			Timeout:      15 * time.Second,
			OutputStream: "stderr",
			Fields: ScorerFields{
				Score:     "Final Investment Attractiveness Score",
				Verdict:   "Verdict",
				Rationale: "Reasoning Summary",
			},
			RatePerSecond: 2,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
			},
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("UNISEARCH_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps UNISEARCH_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UNISEARCH_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("UNISEARCH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("UNISEARCH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("UNISEARCH_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("UNISEARCH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("UNISEARCH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("UNISEARCH_DISPATCH_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Dispatch.DefaultTimeout = d
		}
	}
	if v := os.Getenv("UNISEARCH_DISPATCH_DEFAULT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.DefaultCount = n
		}
	}
	if v := os.Getenv("UNISEARCH_DISPATCH_MAX_OUTPUT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.MaxOutputBytes = n
		}
	}
	if v := os.Getenv("UNISEARCH_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = v == "true"
	}
	if v := os.Getenv("UNISEARCH_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("UNISEARCH_SCORER_COMMAND"); v != "" {
		cfg.Scorer.Command = v
	}
	if v := os.Getenv("UNISEARCH_SCORER_ARGS"); v != "" {
		cfg.Scorer.Args = strings.Fields(v)
	}
	if v := os.Getenv("UNISEARCH_SCORER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Scorer.Timeout = d
		}
	}

	// Per-provider overrides: UNISEARCH_PROVIDER_<NAME>_TIMEOUT, _COMMAND, _URL.
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		prefix := "UNISEARCH_PROVIDER_" + envName(p.Name) + "_"
		if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				p.Timeout = d
			}
		}
		if v := os.Getenv(prefix + "COMMAND"); v != "" {
			p.Command = v
		}
		if v := os.Getenv(prefix + "URL"); v != "" {
			p.URL = v
		}
	}

	if v := os.Getenv("UNISEARCH_PROVIDERS"); v != "" {
		cfg.Providers = filterProviders(cfg.Providers, splitAndTrim(v, ","))
	}
}

// filterProviders keeps only the named providers, in the order given.
// Unknown names are kept as empty entries so Validate can report them.
func filterProviders(all []ProviderConfig, names []string) []ProviderConfig {
	byName := make(map[string]ProviderConfig, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}
	out := make([]ProviderConfig, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		p, ok := byName[n]
		if !ok {
			p = ProviderConfig{Name: n}
		}
		out = append(out, p)
	}
	return out
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ResolveDir resolves a relative directory against the workspace.
func (c *Config) ResolveDir(dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Workspace, dir)
}

// decryptSecrets finds "enc:..." values in provider env/headers and scorer env and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if err := decryptMap(p.Env, passphrase); err != nil {
			return fmt.Errorf("provider %s env: %w", p.Name, err)
		}
		if err := decryptMap(p.Headers, passphrase); err != nil {
			return fmt.Errorf("provider %s headers: %w", p.Name, err)
		}
	}
	if err := decryptMap(cfg.Scorer.Env, passphrase); err != nil {
		return fmt.Errorf("scorer env: %w", err)
	}
	return nil
}

func decryptMap(m map[string]string, passphrase string) error {
	for k, v := range m {
		if !strings.HasPrefix(v, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(v, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		m[k] = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Group or other write access is rejected; read access is fine.
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
