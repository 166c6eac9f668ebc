package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/fsutil"
)

// envVarPattern matches environment references in config values:
//   - ${VAR}          - value of VAR, placeholder kept if unset
//   - ${VAR:-default} - default when VAR is unset
//   - ${VAR:?message} - load fails with message when VAR is unset
//   - $VAR            - bare upper-case variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Load reads the config at path, or the first discovered file when path is
// empty. With no file at all it returns the defaults and an empty path.
func Load(path string) (*Config, string, error) {
	if path == "" {
		path = FindConfigFile()
	}
	if path == "" {
		loadEnvFiles()
		return DefaultConfig(), "", nil
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// LoadConfigFromFile reads and parses a YAML configuration file after
// loading .env files and expanding environment references.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)

	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config, starting from the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mapping config: %w", err)
	}

	// foreign_keys defaults to on; only an explicit false turns it off.
	if dbMap, ok := raw["database"].(map[string]any); ok {
		if _, set := dbMap["foreign_keys"]; !set {
			cfg.Database.ForeignKeys = true
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg.Effective(), nil
}

func validate(cfg *Config) error {
	switch cfg.Database.KeyPolicy {
	case "", "strict", "first-wins":
	default:
		return fmt.Errorf("database.key_policy: unknown policy %q", cfg.Database.KeyPolicy)
	}
	switch cfg.Keystore.Backend {
	case "", "keyring", "vault", "none":
	default:
		return fmt.Errorf("keystore.backend: unknown backend %q", cfg.Keystore.Backend)
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format)
	}
	if cfg.Database.IdleTimeout < 0 {
		return fmt.Errorf("database.idle_timeout must not be negative")
	}
	return nil
}

// SaveConfigToFile writes cfg as YAML to path with owner-only permissions,
// keeping the previous file as path.bak.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Gateway.AuthToken = sanitizeSecret(cfg.Gateway.AuthToken, EnvGatewayToken)

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	var check map[string]any
	if err := yaml.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("config validation failed (refusing to write corrupt data): %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches the working directory, then the user config dir.
func FindConfigFile() string {
	candidates := []string{
		"sqlfront.yaml",
		"sqlfront.yml",
		"config.yaml",
		"config.yml",
		filepath.Join(fsutil.ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files from the working directory. Existing
// variables are not overwritten.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, value, bare := sub[1], sub[2], sub[3], sub[4]

		if bare != "" {
			if val, ok := os.LookupEnv(bare); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + value
		case "-":
			return value
		}
		return match
	})
}

// expandEnvVarsWithValidation fails when a ${VAR:?message} variable is unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx == -1 {
		return result, nil
	}

	rest := result[idx+len("ERROR:"):]
	colon := strings.Index(rest, ":")
	if colon == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	msg := rest[colon+1:]
	if nl := strings.IndexByte(msg, '\n'); nl != -1 {
		msg = msg[:nl]
	}
	return "", fmt.Errorf("config error: %s - %s", rest[:colon], strings.TrimSpace(msg))
}

// resolveRelativePaths makes file paths relative to the config file's
// directory so the CLI works from any working directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	dir := filepath.Dir(configPath)

	cfg.History.Path = resolvePathFromConfig(cfg.History.Path, dir)
	cfg.Notes.Path = resolvePathFromConfig(cfg.Notes.Path, dir)
	cfg.Keystore.VaultPath = resolvePathFromConfig(cfg.Keystore.VaultPath, dir)
}

func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// sanitizeSecret swaps a secret for its env reference when the environment
// already carries the same value.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// IsEnvReference reports whether s is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// checkFilePermissions warns if the config file is readable by others.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
