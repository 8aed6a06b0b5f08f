// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ErrMissingRequired is returned by Validate when a required setting has no value.
var ErrMissingRequired = errors.New("missing required configuration")

// requiredEnv maps the config keys that must be present to the environment
// variables that traditionally carry them.
var requiredEnv = []struct {
	key string
	env string
}{
	{"target.url", "WEBSITE_URL"},
	{"credentials.username", "USERNAME"},
	{"credentials.password", "PASSWORD"},
	{"telegram.bot_token", "TELEGRAM_BOT_TOKEN"},
	{"telegram.chat_id", "TELEGRAM_CHAT_ID"},
}

// Secret is a string that never prints its value.
type Secret string

// String masks the value so a Secret is safe to pass to a logger or a fmt verb.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "******"
}

// Reveal returns the raw value. Only the component that consumes the secret should call it.
func (s Secret) Reveal() string { return string(s) }

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Target      TargetConfig      `mapstructure:"target" yaml:"target"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"-"`
	Telegram    TelegramConfig    `mapstructure:"telegram" yaml:"telegram"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Challenge   ChallengeConfig   `mapstructure:"challenge" yaml:"challenge"`
	Login       LoginConfig       `mapstructure:"login" yaml:"login"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// TargetConfig points at the control panel.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// CredentialsConfig is the account used for the login attempt.
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"-"`
	Password Secret `mapstructure:"password" yaml:"-"`
}

// TelegramConfig configures the operator notification channel.
type TelegramConfig struct {
	BotToken Secret        `mapstructure:"bot_token" yaml:"-"`
	ChatID   string        `mapstructure:"chat_id" yaml:"chat_id"`
	APIURL   string        `mapstructure:"api_url" yaml:"api_url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath       string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	UserAgent      string         `mapstructure:"user_agent" yaml:"user_agent"`
	Languages      []string       `mapstructure:"languages" yaml:"languages"`
	ViewportWidth  int            `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int            `mapstructure:"viewport_height" yaml:"viewport_height"`
	LaunchTimeout  time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	Humanoid       HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// ChallengeConfig lists the signals that identify an anti-bot interstitial.
type ChallengeConfig struct {
	TitlePhrases   []string      `mapstructure:"title_phrases" yaml:"title_phrases"`
	URLMarkers     []string      `mapstructure:"url_markers" yaml:"url_markers"`
	ContentMarkers []string      `mapstructure:"content_markers" yaml:"content_markers"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// LoginConfig tunes the login sequence: paths, budgets, selectors and success markers.
type LoginConfig struct {
	LoginPath    string `mapstructure:"login_path" yaml:"login_path"`
	RecoveryPath string `mapstructure:"recovery_path" yaml:"recovery_path"`

	NavigationTimeout         time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	RecoveryNavigationTimeout time.Duration `mapstructure:"recovery_navigation_timeout" yaml:"recovery_navigation_timeout"`
	InitialChallengeTimeout   time.Duration `mapstructure:"initial_challenge_timeout" yaml:"initial_challenge_timeout"`
	PostChallengeTimeout      time.Duration `mapstructure:"post_challenge_timeout" yaml:"post_challenge_timeout"`
	FieldTimeout              time.Duration `mapstructure:"field_timeout" yaml:"field_timeout"`
	SubmitSettle              time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	PostCheckSettle           time.Duration `mapstructure:"post_check_settle" yaml:"post_check_settle"`
	RecoverySettle            time.Duration `mapstructure:"recovery_settle" yaml:"recovery_settle"`

	EmailSelectors    []string `mapstructure:"email_selectors" yaml:"email_selectors"`
	PasswordSelectors []string `mapstructure:"password_selectors" yaml:"password_selectors"`
	SubmitSelectors   []string `mapstructure:"submit_selectors" yaml:"submit_selectors"`
	ErrorSelectors    []string `mapstructure:"error_selectors" yaml:"error_selectors"`

	SuccessMarkers     []string `mapstructure:"success_markers" yaml:"success_markers"`
	AuthenticatedPaths []string `mapstructure:"authenticated_paths" yaml:"authenticated_paths"`
}

// DiagnosticsConfig controls where failure artifacts are written.
type DiagnosticsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoginURL is the absolute URL of the login page.
func (c *Config) LoginURL() string { return joinURL(c.Target.URL, c.Login.LoginPath) }

// RecoveryURL is the absolute URL of the authenticated page used for the recovery navigation.
func (c *Config) RecoveryURL() string { return joinURL(c.Target.URL, c.Login.RecoveryPath) }

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "panelkeeper")
	v.SetDefault("logger.log_file", "panelkeeper.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Telegram --
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "15s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.languages", []string{"zh-CN", "zh", "en"})
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.launch_timeout", "30s")
	setHumanoidDefaults(v)

	// -- Challenge --
	v.SetDefault("challenge.title_phrases", []string{"Just a moment", "Checking", "Please Wait", "Verifying"})
	v.SetDefault("challenge.url_markers", []string{"challenges", "/cdn-cgi/challenge-platform"})
	v.SetDefault("challenge.content_markers", []string{"cf-browser-verification", "cf_chl_prog", "cf-challenge-running", "challenge-form"})
	v.SetDefault("challenge.poll_interval", "3s")

	// -- Login --
	v.SetDefault("login.login_path", "/login")
	// The panel's own post-login page is usually account specific (e.g. /servers/<id>);
	// set login.recovery_path or PANELKEEPER_LOGIN_RECOVERY_PATH to it.
	v.SetDefault("login.recovery_path", "/dashboard")
	v.SetDefault("login.navigation_timeout", "60s")
	v.SetDefault("login.recovery_navigation_timeout", "30s")
	v.SetDefault("login.initial_challenge_timeout", "60s")
	v.SetDefault("login.post_challenge_timeout", "30s")
	v.SetDefault("login.field_timeout", "10s")
	v.SetDefault("login.submit_settle", "5s")
	v.SetDefault("login.post_check_settle", "5s")
	v.SetDefault("login.recovery_settle", "3s")
	v.SetDefault("login.email_selectors", []string{`#email`, `input[type="email"]`, `input[name="email"]`, `[id*="email"]`})
	v.SetDefault("login.password_selectors", []string{`#password`, `input[type="password"]`, `input[name="password"]`, `[id*="password"]`})
	v.SetDefault("login.submit_selectors", []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button[type="button"]`,
		`.btn`,
		`.button`,
		`[class*="login"]`,
		`[class*="submit"]`,
		`[onclick*="login"]`,
	})
	v.SetDefault("login.error_selectors", []string{`.error`, `.alert-danger`, `.text-danger`, `[class*="error"]`})
	v.SetDefault("login.success_markers", []string{"Server Control", "Betadash", "Lunes", "Panel", "Dashboard"})
	v.SetDefault("login.authenticated_paths", []string{"/servers/", "/dashboard"})

	// -- Diagnostics --
	v.SetDefault("diagnostics.dir", ".")
}

// BindEnv wires the well-known, unprefixed environment variables to their config keys.
func BindEnv(v *viper.Viper) error {
	for _, r := range requiredEnv {
		if err := v.BindEnv(r.key, r.env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", r.env, err)
		}
	}
	return nil
}

// Decode builds a Config from a viper instance that already has defaults, config
// file and env settings applied. It does not validate.
func Decode(v *viper.Viper) (*Config, error) {
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is Decode followed by Validate.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.Diagnostics.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand diagnostics.dir: %w", err)
	}
	c.Diagnostics.Dir = dir

	if c.Logger.LogFile != "" {
		logFile, err := homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		c.Logger.LogFile = logFile
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var missing []string
	values := map[string]string{
		"target.url":           c.Target.URL,
		"credentials.username": c.Credentials.Username,
		"credentials.password": c.Credentials.Password.Reveal(),
		"telegram.bot_token":   c.Telegram.BotToken.Reveal(),
		"telegram.chat_id":     c.Telegram.ChatID,
	}
	for _, r := range requiredEnv {
		if strings.TrimSpace(values[r.key]) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	u, err := url.Parse(c.Target.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute http(s) URL, got %q", c.Target.URL)
	}

	if err := c.Login.Validate(); err != nil {
		return fmt.Errorf("login configuration invalid: %w", err)
	}
	if c.Challenge.PollInterval <= 0 {
		return fmt.Errorf("challenge.poll_interval must be a positive duration")
	}
	if err := c.Browser.Humanoid.Validate(); err != nil {
		return fmt.Errorf("browser.humanoid configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the login budgets and selector lists.
func (l *LoginConfig) Validate() error {
	durations := map[string]time.Duration{
		"navigation_timeout":          l.NavigationTimeout,
		"recovery_navigation_timeout": l.RecoveryNavigationTimeout,
		"initial_challenge_timeout":   l.InitialChallengeTimeout,
		"post_challenge_timeout":      l.PostChallengeTimeout,
		"field_timeout":               l.FieldTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if l.SubmitSettle < 0 || l.PostCheckSettle < 0 || l.RecoverySettle < 0 {
		return fmt.Errorf("settle delays must not be negative")
	}
	if l.LoginPath == "" {
		return fmt.Errorf("login_path is required")
	}
	if len(l.EmailSelectors) == 0 || len(l.PasswordSelectors) == 0 || len(l.SubmitSelectors) == 0 {
		return fmt.Errorf("email_selectors, password_selectors, and submit_selectors must not be empty")
	}
	if len(l.SuccessMarkers) == 0 {
		return fmt.Errorf("success_markers must not be empty")
	}
	return nil
}
