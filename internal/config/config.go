package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"podnote/internal/theme"
)

const (
	StoreGitHub = "github"
	StoreSQLite = "sqlite"
)

// Config represents the persisted application configuration. The same file
// serves the wizard (client keys) and the API server (server keys).
type Config struct {
	ServerURL string `yaml:"server_url"`
	UserAgent string `yaml:"user_agent"`

	ListenAddr         string `yaml:"listen_addr"`
	PodcastSecret      string `yaml:"podcast_secret,omitempty"`
	AssemblyAIKey      string `yaml:"assemblyai_api_key,omitempty"`
	TranscribeLanguage string `yaml:"transcribe_language"`
	LLMKey             string `yaml:"llm_api_key,omitempty"`
	LLMBaseURL         string `yaml:"llm_base_url"`
	LLMModel           string `yaml:"llm_model"`

	StoreBackend   string `yaml:"store_backend"`
	GitHubToken    string `yaml:"github_token,omitempty"`
	GitHubOwner    string `yaml:"github_owner"`
	GitHubRepo     string `yaml:"github_repo"`
	GitHubBranch   string `yaml:"github_branch,omitempty"`
	NotesDir       string `yaml:"notes_dir"`
	DiscussionsDir string `yaml:"discussions_dir"`
	NoteCategory   string `yaml:"note_category"`
	DefaultTags    string `yaml:"default_tags"`

	PollIntervalSec        int `yaml:"poll_interval_seconds"`
	PollMaxWaitMin         int `yaml:"poll_max_wait_minutes"`
	ChatMaxMessages        int `yaml:"chat_max_messages"`
	DiscussContextMessages int `yaml:"discuss_context_messages"`
	SaveAttempts           int `yaml:"save_attempts"`
	StateTTLHours          int `yaml:"state_ttl_hours"`

	ColorTheme string `yaml:"color_theme"`
}

// Defaults returns the baseline configuration used on first run.
func Defaults() Config {
	return Config{
		ServerURL:              "http://localhost:8080",
		UserAgent:              "podnote/dev",
		ListenAddr:             ":8080",
		TranscribeLanguage:     "zh",
		LLMBaseURL:             "https://api.deepseek.com/v1",
		LLMModel:               "deepseek-chat",
		StoreBackend:           StoreSQLite,
		NotesDir:               "content/podcast-notes",
		DiscussionsDir:         "data/discussions",
		NoteCategory:           "Podcast Notes",
		DefaultTags:            "podcast",
		PollIntervalSec:        5,
		PollMaxWaitMin:         120,
		ChatMaxMessages:        20,
		DiscussContextMessages: 10,
		SaveAttempts:           2,
		StateTTLHours:          7 * 24,
		ColorTheme:             theme.Default,
	}
}

// PollInterval is the delay between transcription status checks.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PollMaxWait bounds how long the wizard waits on one transcription job.
// Zero means no bound.
func (c Config) PollMaxWait() time.Duration {
	return time.Duration(c.PollMaxWaitMin) * time.Minute
}

// StateTTL is the age after which a persisted wizard state is discarded.
func (c Config) StateTTL() time.Duration {
	return time.Duration(c.StateTTLHours) * time.Hour
}

// Ensure loads configuration from the provided path, prompting the user to
// create one if it does not yet exist.
func Ensure(ctx context.Context, path string) (Config, error) {
	return ensure(ctx, path, true)
}

// EnsureHeadless is Ensure without the first-run prompt. A missing file is
// created from Defaults and the environment.
func EnsureHeadless(ctx context.Context, path string) (Config, error) {
	return ensure(ctx, path, false)
}

func ensure(ctx context.Context, path string, interactive bool) (Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg = Defaults()
	if err := bootstrap(ctx, &cfg, interactive); err != nil {
		return Config{}, err
	}

	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}

	return ApplyEnv(cfg), nil
}

// Load reads configuration from disk and overlays the environment.
func Load(path string) (Config, error) {
	cfg, err := LoadStored(path)
	if err != nil {
		return Config{}, err
	}
	return ApplyEnv(cfg), nil
}

// LoadStored reads configuration from disk only.
func LoadStored(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	defaults := Defaults()
	if strings.TrimSpace(cfg.ColorTheme) == "" {
		cfg.ColorTheme = theme.Default
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = defaults.PollIntervalSec
	}
	if cfg.PollMaxWaitMin < 0 {
		cfg.PollMaxWaitMin = 0
	}
	if cfg.ChatMaxMessages <= 0 {
		cfg.ChatMaxMessages = defaults.ChatMaxMessages
	}
	if cfg.DiscussContextMessages <= 0 {
		cfg.DiscussContextMessages = defaults.DiscussContextMessages
	}
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = defaults.SaveAttempts
	}
	if cfg.StateTTLHours <= 0 {
		cfg.StateTTLHours = defaults.StateTTLHours
	}
	if cfg.StoreBackend != StoreGitHub {
		cfg.StoreBackend = StoreSQLite
	}
	return cfg, nil
}

// Save writes configuration back to disk, ensuring directory permissions are restrictive.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

type envOverride struct {
	key   string
	field func(*Config) *string
}

var envOverrides = []envOverride{
	{"PODNOTE_SERVER_URL", func(c *Config) *string { return &c.ServerURL }},
	{"PODNOTE_SECRET", func(c *Config) *string { return &c.PodcastSecret }},
	{"ASSEMBLYAI_API_KEY", func(c *Config) *string { return &c.AssemblyAIKey }},
	{"LLM_API_KEY", func(c *Config) *string { return &c.LLMKey }},
	{"GITHUB_TOKEN", func(c *Config) *string { return &c.GitHubToken }},
}

// LoadDotEnv exports the variables in a .env file that are not already set
// in the process environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays secrets from the environment so they never need to be
// written to the config file.
func ApplyEnv(cfg Config) Config {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.field(&cfg) = v
		}
	}
	return cfg
}

// WithoutEnv undoes ApplyEnv before a save: every field still holding its
// environment value gets the value from onDisk back.
func WithoutEnv(cfg, onDisk Config) Config {
	for _, o := range envOverrides {
		v := strings.TrimSpace(os.Getenv(o.key))
		if v != "" && *o.field(&cfg) == v {
			*o.field(&cfg) = *o.field(&onDisk)
		}
	}
	return cfg
}

func bootstrap(ctx context.Context, cfg *Config, interactive bool) error {
	if fromEnv := strings.TrimSpace(os.Getenv("PODNOTE_SERVER_URL")); fromEnv != "" {
		if err := validateURL(fromEnv); err != nil {
			return err
		}
		cfg.ServerURL = fromEnv
		return nil
	}
	if !interactive {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	prompt := &survey.Input{
		Message: "Backend URL",
		Default: cfg.ServerURL,
	}

	var answer string
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(survey.Required), survey.WithValidator(validateURLAnswer)); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return fmt.Errorf("initialisation interrupted")
		}
		return err
	}

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(answer), "/")
	return nil
}

// EditInteractive opens an interactive survey session allowing the user to
// update the client-facing configuration values.
func EditInteractive(ctx context.Context, cfg Config) (Config, error) {
	questions := []*survey.Question{
		{
			Name: "server_url",
			Prompt: &survey.Input{
				Message: "Backend URL",
				Default: cfg.ServerURL,
			},
			Validate: validateURLAnswer,
		},
		{
			Name: "default_tags",
			Prompt: &survey.Input{
				Message: "Default note tags (comma separated)",
				Default: cfg.DefaultTags,
			},
		},
		{
			Name: "poll_interval_seconds",
			Prompt: &survey.Input{
				Message: "Transcription poll interval (seconds)",
				Default: fmt.Sprintf("%d", cfg.PollIntervalSec),
			},
			Validate: validatePositiveInt,
		},
		{
			Name: "poll_max_wait_minutes",
			Prompt: &survey.Input{
				Message: "Give up waiting on a transcription after (minutes, 0 = never)",
				Default: fmt.Sprintf("%d", cfg.PollMaxWaitMin),
			},
			Validate: validateNonNegativeInt,
		},
		{
			Name: "color_theme",
			Prompt: &survey.Select{
				Message: "Color theme",
				Options: theme.Names(),
				Default: cfg.ColorTheme,
			},
		},
	}

	answers := map[string]interface{}{}
	select {
	case <-ctx.Done():
		return Config{}, ctx.Err()
	default:
	}

	if err := survey.Ask(questions, &answers); err != nil {
		return Config{}, err
	}

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(answers["server_url"].(string)), "/")
	cfg.DefaultTags = strings.TrimSpace(answers["default_tags"].(string))
	cfg.PollIntervalSec = toInt(answers["poll_interval_seconds"])
	cfg.PollMaxWaitMin = toInt(answers["poll_max_wait_minutes"])
	if answer, ok := answers["color_theme"].(survey.OptionAnswer); ok {
		cfg.ColorTheme = answer.Value
	}

	return cfg, nil
}

func validateURLAnswer(ans interface{}) error {
	v, _ := ans.(string)
	return validateURL(v)
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid backend URL %q", raw)
	}
	return nil
}

func validatePositiveInt(ans interface{}) error {
	v := strings.TrimSpace(ans.(string))
	if v == "" {
		return errors.New("value required")
	}
	i, err := parseInt(v)
	if err != nil {
		return err
	}
	if i <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}

func validateNonNegativeInt(ans interface{}) error {
	v := strings.TrimSpace(ans.(string))
	if v == "" {
		return errors.New("value required")
	}
	i, err := parseInt(v)
	if err != nil {
		return err
	}
	if i < 0 {
		return errors.New("must be zero or positive")
	}
	return nil
}

func parseInt(value string) (int, error) {
	var i int
	_, err := fmt.Sscanf(value, "%d", &i)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	return i, nil
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		i, _ := parseInt(v)
		return i
	default:
		return 0
	}
}
