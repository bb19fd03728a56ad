package internal

import (
	"fmt"
	"log/slog"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/postlock/internal/build"
	"github.com/starford/postlock/internal/bundle"
	"github.com/starford/postlock/internal/linklock"
	"github.com/starford/postlock/internal/shell"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// PassphraseEnv is read when no passphrase is configured.
const PassphraseEnv = "POSTLOCK_PASSPHRASE"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Project   ProjectConfig     `yaml:"project"`
	Crypto    CryptoConfig      `yaml:"crypto"`
	Lock      LockConfig        `yaml:"lock"`
	AllowList []string          `yaml:"allowlist"`
	Build     BuildConfig       `yaml:"build"`
	Journal   JournalConfig     `yaml:"journal"`
	Commands  map[string]string `yaml:"commands"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Project.Validate(); err != nil {
		return err
	}
	if err := c.Crypto.Validate(); err != nil {
		return err
	}
	if err := c.Build.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// Presets merges the configured commands over shell.DefaultPresets. An
// empty command removes a preset.
func (c *Config) Presets() map[string]string {
	presets := shell.DefaultPresets()
	for name, cmd := range c.Commands {
		if cmd == "" {
			delete(presets, name)
			continue
		}
		presets[name] = cmd
	}
	return presets
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ProjectConfig locates the blog project. PostsDir, PublicDir and
// BackupDir are relative to Root.
type ProjectConfig struct {
	Root      string `yaml:"root"`
	PostsDir  string `yaml:"posts_dir"`
	PublicDir string `yaml:"public_dir"`
	BackupDir string `yaml:"backup_dir"`
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.PostsDir, validation.Required),
		validation.Field(&c.PublicDir, validation.Required),
		validation.Field(&c.BackupDir, validation.Required),
	)
}

// CryptoConfig holds the key derivation parameters. They must match the
// blog's decrypt dialog.
type CryptoConfig struct {
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
	Iterations int    `yaml:"iterations"`
}

// Validate validates the crypto configuration. An empty passphrase is
// allowed here; it is only required by commands that derive a key.
func (c *CryptoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Salt, validation.Required),
		validation.Field(&c.Iterations, validation.Required, validation.Min(1000)),
	)
}

// Key derives the link key.
func (c *CryptoConfig) Key() (linklock.Key, error) {
	if c.Passphrase == "" {
		return linklock.Key{}, fmt.Errorf("crypto: passphrase is empty; set crypto.passphrase or %s", PassphraseEnv)
	}
	return linklock.DeriveKey(c.Passphrase, c.Salt, c.Iterations)
}

// LockConfig holds the visible text of locked links.
type LockConfig struct {
	Label     string `yaml:"label"`
	CodeLabel string `yaml:"code_label"`
}

// BuildConfig holds build driver settings.
type BuildConfig struct {
	Workers int `yaml:"workers"`
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(256)),
	)
}

// JournalConfig holds the SQLite build journal location. An empty Path
// disables the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a journal is configured.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Project: ProjectConfig{
			Root:      ".",
			PostsDir:  build.DefaultPostsDir,
			PublicDir: build.DefaultPublicDir,
			BackupDir: bundle.DefaultBackupDir,
		},
		Crypto: CryptoConfig{
			Passphrase: os.Getenv(PassphraseEnv),
			Salt:       linklock.DefaultSalt,
			Iterations: linklock.DefaultIterations,
		},
		Lock: LockConfig{
			Label:     linklock.DefaultLabel,
			CodeLabel: linklock.DefaultCodeLabel,
		},
		Build: BuildConfig{
			Workers: 4,
		},
		Journal: JournalConfig{
			Path: ".postlock/journal.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
