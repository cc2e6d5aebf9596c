package app

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"podnote/internal/apiclient"
	"podnote/internal/config"
	"podnote/internal/fuzzy"
	"podnote/internal/repository"
	"podnote/internal/wizard"
)

type commandHandler func(context.Context, []string) (CommandResult, error)

type command struct {
	name    string
	usage   string
	summary string
	// steps limits where the command applies; empty means everywhere.
	steps   []wizard.Step
	handler commandHandler
}

type CommandResult struct {
	Message string
	Quit    bool
	// Preview is markdown to show in the note viewer.
	Preview string
	// EditConfig asks the front end to release the terminal and run
	// EditConfig.
	EditConfig bool
}

type App struct {
	config     config.Config
	configPath string
	db         *sql.DB
	api        *apiclient.Client
	repo       *repository.Store
	persist    *wizard.Persistence
	controller *wizard.Controller
	commands   map[string]*command
}

type Dependencies struct {
	HTTPClient *http.Client
	// API replaces the HTTP backend client for the wizard.
	API wizard.API
	// PollInterval overrides the configured transcription poll interval.
	PollInterval time.Duration
}

func New(cfg config.Config, configPath string, db *sql.DB) *App {
	return NewWithDependencies(cfg, configPath, db, Dependencies{})
}

func NewWithDependencies(cfg config.Config, configPath string, db *sql.DB, deps Dependencies) *App {
	httpClient := deps.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		// No overall timeout: completion streams stay open for minutes.
		httpClient = &http.Client{Transport: transport}
	}

	apiClient := apiclient.New(httpClient, cfg.ServerURL, cfg.UserAgent)
	var api wizard.API = apiClient
	if deps.API != nil {
		api = deps.API
	}

	pollInterval := deps.PollInterval
	if pollInterval <= 0 {
		pollInterval = cfg.PollInterval()
	}

	repo := repository.New(db)
	persist := wizard.NewPersistence(repo, cfg.StateTTL())
	machine := wizard.Machine{
		Category:        cfg.NoteCategory,
		DefaultTags:     cfg.DefaultTags,
		ChatMaxMessages: cfg.ChatMaxMessages,
		PollMaxWait:     cfg.PollMaxWait(),
	}
	controller := wizard.NewController(machine, wizard.NewExecutor(api, persist, pollInterval), persist)

	application := &App{
		config:     cfg,
		configPath: configPath,
		db:         db,
		api:        apiClient,
		repo:       repo,
		persist:    persist,
		controller: controller,
		commands:   make(map[string]*command),
	}
	application.registerCommands()
	return application
}

func (a *App) Config() config.Config {
	return a.config
}

// CommandNames lists the primary command names.
func (a *App) CommandNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(a.commands))
	for _, cmd := range a.commands {
		if !seen[cmd.name] {
			seen[cmd.name] = true
			names = append(names, cmd.name)
		}
	}
	sort.Strings(names)
	return names
}

func (a *App) Close() error {
	a.controller.Close()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Start restores any persisted wizard state. The configured secret, if any,
// is used as the access password.
func (a *App) Start(ctx context.Context) (wizard.Session, error) {
	return a.controller.Start(ctx, a.config.PodcastSecret)
}

func (a *App) Session() wizard.Session {
	return a.controller.Session()
}

// Events delivers completions of background wizard work.
func (a *App) Events() <-chan wizard.Event {
	return a.controller.Events()
}

func (a *App) Dispatch(ctx context.Context, ev wizard.Event) wizard.Session {
	return a.controller.Dispatch(ctx, ev)
}

// Execute handles one line of input: a slash command, or free text whose
// meaning depends on the current step.
func (a *App) Execute(ctx context.Context, input string) (CommandResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return CommandResult{}, nil
	}
	if !strings.HasPrefix(input, "/") {
		return a.freeText(ctx, input)
	}

	args, err := shellquote.Split(strings.TrimPrefix(input, "/"))
	if err != nil {
		return CommandResult{}, err
	}
	if len(args) == 0 {
		return CommandResult{}, nil
	}

	cmdName := strings.ToLower(args[0])
	cmd, ok := a.commands[cmdName]
	if !ok {
		msg := fmt.Sprintf("unknown command: /%s", args[0])
		if suggestion, found := fuzzy.Closest(cmdName, a.CommandNames(), 0.6); found {
			msg += fmt.Sprintf(" (did you mean /%s?)", suggestion)
		}
		return CommandResult{Message: msg}, nil
	}
	if !cmd.allowedAt(a.Session().Step) {
		return CommandResult{Message: fmt.Sprintf("/%s is not available on the %s step.", cmd.name, a.Session().Step)}, nil
	}

	return cmd.handler(ctx, args[1:])
}

func (c *command) allowedAt(step wizard.Step) bool {
	if len(c.steps) == 0 {
		return true
	}
	for _, s := range c.steps {
		if s == step {
			return true
		}
	}
	return false
}

func (a *App) freeText(ctx context.Context, text string) (CommandResult, error) {
	s := a.Session()
	switch s.Step {
	case wizard.StepURLInput:
		if s.Secret == "" {
			a.Dispatch(ctx, wizard.SecretEntered{Secret: text})
			return CommandResult{Message: "Access password set."}, nil
		}
		a.Dispatch(ctx, wizard.URLSubmitted{URL: text})
		return CommandResult{}, nil
	case wizard.StepNotesAndChat:
		a.Dispatch(ctx, wizard.ChatSent{Text: text})
		return CommandResult{}, nil
	case wizard.StepConfirmMeta:
		return CommandResult{Message: "Type /next to start transcription or /back to change the URL."}, nil
	case wizard.StepTranscribing:
		return CommandResult{Message: "Transcription is running. Type /cancel to abandon it."}, nil
	default:
		return CommandResult{Message: "Use /title, /slug and /tags to edit, then /publish."}, nil
	}
}

func (a *App) registerCommands() {
	a.registerCommand("help", "help", "List available commands", nil, a.helpCommand, "?")
	a.registerCommand("quit", "quit", "Exit the wizard (progress is kept)", nil, a.quitCommand, "exit", "q")
	a.registerCommand("secret", "secret <password>", "Set the access password", nil, a.secretCommand)
	a.registerCommand("config", "config [show]", "View or edit application configuration", nil, a.configCommand)
	a.registerCommand("back", "back", "Return to the previous step",
		steps(wizard.StepConfirmMeta, wizard.StepNotesAndChat, wizard.StepEditAndPublish), a.eventCommand(wizard.WentBack{}))
	a.registerCommand("next", "next", "Continue to the next step",
		steps(wizard.StepConfirmMeta, wizard.StepNotesAndChat), a.eventCommand(wizard.WentNext{}))
	a.registerCommand("cancel", "cancel", "Abandon the running transcription",
		steps(wizard.StepTranscribing), a.eventCommand(wizard.Cancelled{}))
	a.registerCommand("retry", "retry", "Retry the failed or timed out step",
		steps(wizard.StepTranscribing, wizard.StepNotesAndChat), a.eventCommand(wizard.RetryRequested{}))
	a.registerCommand("regenerate", "regenerate", "Discard the notes and generate them again",
		steps(wizard.StepNotesAndChat), a.eventCommand(wizard.RegenerateRequested{}), "regen")
	a.registerCommand("abort", "abort", "Stop the AI response (partial text is kept)",
		steps(wizard.StepNotesAndChat, wizard.StepEditAndPublish), a.eventCommand(wizard.StreamAborted{}))
	a.registerCommand("title", "title <text>", "Set the note title",
		steps(wizard.StepEditAndPublish), a.fieldCommand(wizard.FieldTitle, "title <text>"))
	a.registerCommand("slug", "slug <slug>", "Set the note slug",
		steps(wizard.StepEditAndPublish), a.fieldCommand(wizard.FieldSlug, "slug <slug>"))
	a.registerCommand("tags", "tags <a,b,c>", "Set the note tags",
		steps(wizard.StepEditAndPublish), a.fieldCommand(wizard.FieldTags, "tags <a,b,c>"))
	a.registerCommand("condense", "condense", "Summarise the chat into the note's discussion section",
		steps(wizard.StepEditAndPublish), a.eventCommand(wizard.CondenseRequested{}))
	a.registerCommand("preview", "preview", "Show the note as it will be published",
		steps(wizard.StepEditAndPublish), a.previewCommand)
	a.registerCommand("export", "export [file]", "Write the note to a local markdown file",
		steps(wizard.StepEditAndPublish), a.exportCommand)
	a.registerCommand("publish", "publish", "Publish the note to the site",
		steps(wizard.StepEditAndPublish), a.eventCommand(wizard.PublishRequested{}))
	a.registerCommand("reset", "reset", "Start over and forget the saved progress", nil, a.eventCommand(wizard.ResetRequested{}))
	a.registerCommand("dismiss", "dismiss", "Hide the current error or notice", nil, a.eventCommand(wizard.ErrorDismissed{}))
}

func steps(s ...wizard.Step) []wizard.Step {
	return s
}

func (a *App) registerCommand(name, usage, summary string, allowed []wizard.Step, handler commandHandler, aliases ...string) {
	cmd := &command{name: name, usage: usage, summary: summary, steps: allowed, handler: handler}
	for _, alias := range append([]string{name}, aliases...) {
		a.commands[alias] = cmd
	}
}

func (a *App) eventCommand(ev wizard.Event) commandHandler {
	return func(ctx context.Context, _ []string) (CommandResult, error) {
		a.Dispatch(ctx, ev)
		return CommandResult{}, nil
	}
}

func (a *App) fieldCommand(field wizard.Field, usage string) commandHandler {
	return func(ctx context.Context, args []string) (CommandResult, error) {
		if len(args) == 0 {
			return CommandResult{Message: "Usage: " + usage}, nil
		}
		a.Dispatch(ctx, wizard.FieldEdited{Field: field, Value: strings.Join(args, " ")})
		return CommandResult{}, nil
	}
}

func (a *App) helpCommand(_ context.Context, _ []string) (CommandResult, error) {
	step := a.Session().Step
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range a.CommandNames() {
		cmd := a.commands[name]
		marker := " "
		if !cmd.allowedAt(step) {
			marker = "-"
		}
		fmt.Fprintf(&b, " %s /%-18s %s\n", marker, cmd.usage, cmd.summary)
	}
	b.WriteString("Free text: password or URL on step 1, a chat question on step 4.")
	return CommandResult{Message: b.String()}, nil
}

func (a *App) quitCommand(_ context.Context, _ []string) (CommandResult, error) {
	return CommandResult{Quit: true}, nil
}

func (a *App) secretCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: secret <password>"}, nil
	}
	a.Dispatch(ctx, wizard.SecretEntered{Secret: args[0]})
	return CommandResult{Message: "Access password set."}, nil
}

func (a *App) configCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) > 0 && strings.ToLower(args[0]) == "show" {
		data, err := yaml.Marshal(redacted(a.config))
		if err != nil {
			return CommandResult{}, err
		}
		return CommandResult{Message: string(data)}, nil
	}
	return CommandResult{EditConfig: true}, nil
}

func redacted(cfg config.Config) config.Config {
	for _, secret := range []*string{&cfg.PodcastSecret, &cfg.AssemblyAIKey, &cfg.LLMKey, &cfg.GitHubToken} {
		if *secret != "" {
			*secret = "********"
		}
	}
	return cfg
}

// EditConfig prompts for configuration changes on the terminal and saves
// them. The caller must own stdin for the duration.
func (a *App) EditConfig(ctx context.Context) (CommandResult, error) {
	updated, err := config.EditInteractive(ctx, a.config)
	if err != nil {
		return CommandResult{}, err
	}
	if err := a.saveConfig(updated); err != nil {
		return CommandResult{}, err
	}
	log.Println("configuration updated")
	return CommandResult{Message: "Configuration saved. Restart to apply backend changes."}, nil
}

// saveConfig writes updated to disk without the secrets that came from the
// environment.
func (a *App) saveConfig(updated config.Config) error {
	stored, err := config.LoadStored(a.configPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err != nil {
		stored = config.Defaults()
	}
	if err := config.Save(a.configPath, config.WithoutEnv(updated, stored)); err != nil {
		return err
	}
	a.config = updated
	return nil
}

func (a *App) previewCommand(ctx context.Context, _ []string) (CommandResult, error) {
	s := a.Dispatch(ctx, wizard.PreviewRequested{})
	if s.Preview == "" {
		return CommandResult{}, nil
	}
	return CommandResult{Preview: s.Preview}, nil
}

func (a *App) exportCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) > 1 {
		return CommandResult{Message: "Usage: export [file]"}, nil
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	a.Dispatch(ctx, wizard.ExportRequested{Path: path})
	return CommandResult{}, nil
}
