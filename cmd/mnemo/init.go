// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/secrets"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// initHTTPClient is the HTTP client used for API key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepProvider        initWizardStep = iota // select embedding provider
	stepAPIKey                                // enter embedding API key
	stepValidateKey                           // validating key (spinner)
	stepDistill                               // enable transcript distilling?
	stepDistillKey                            // enter Anthropic API key
	stepValidateDistill                       // validating distill key (spinner)
	stepDone                                  // wizard complete
	stepError                                 // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider   string
	APIKey     string
	DistillKey string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{ step initWizardStep }
	validationErrorMsg   struct {
		step initWizardStep
		err  error
	}
)
type configWrittenMsg struct{ path string }

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// supportedProviders lists the embedding providers the wizard offers.
var supportedProviders = []string{"openai", "google"}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	distillInput   textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipDistill    bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	distillKey := textinput.New()
	distillKey.Placeholder = "paste Anthropic API key here"
	distillKey.EchoMode = textinput.EchoPassword
	distillKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:         stepProvider,
		providerIdx:  0,
		apiKeyInput:  apiKey,
		distillInput: distillKey,
		spinner:      sp,
		secretStore:  store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.handleValidationSuccess(msg)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		switch msg.step {
		case stepValidateKey:
			m.step = stepAPIKey
			m.apiKeyInput.Focus()
		case stepValidateDistill:
			m.step = stepDistillKey
			m.distillInput.Focus()
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepDistill:
		return m.handleDistillKey(msg)
	case stepDistillKey:
		return m.handleDistillKeyInput(msg)
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(
			m.spinner.Tick,
			validateKeyCmd(stepValidateKey, m.result.Provider, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleDistillKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.step = stepDistillKey
		m.validationErr = ""
		m.distillInput.SetValue("")
		m.distillInput.Focus()
		return m, textinput.Blink
	case "s":
		// Skip distilling — proceed directly to config write.
		m.result.DistillKey = ""
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleDistillKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.distillInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.DistillKey = key
		m.validationErr = ""
		m.step = stepValidateDistill
		return m, tea.Batch(
			m.spinner.Tick,
			validateKeyCmd(stepValidateDistill, "anthropic", key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.distillInput, cmd = m.distillInput.Update(msg)
	return m, cmd
}

func (m initModel) handleValidationSuccess(msg validationSuccessMsg) (tea.Model, tea.Cmd) {
	switch msg.step {
	case stepValidateKey:
		if m.skipDistill {
			m.result.DistillKey = ""
			return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
		}
		m.step = stepDistill
	case stepValidateDistill:
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	}
	return m, nil
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepAPIKey:
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	case stepDistillKey:
		var cmd tea.Cmd
		m.distillInput, cmd = m.distillInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Mnemo Setup Wizard  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/2: Choose your embedding provider") + "\n\n")
		for i, p := range supportedProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+p) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+p) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+m.result.Provider+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Provider + " API key…\n")

	case stepDistill:
		b.WriteString(promptStyle.Render("Step 2/2: Distill chat transcripts into knowledge?") + "\n\n")
		b.WriteString("  Requires an Anthropic API key. 'mnemo learn' extracts durable\n")
		b.WriteString("  facts from transcripts and files them in the chat pool.\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to add a key  s to skip  q to quit"))

	case stepDistillKey:
		b.WriteString(promptStyle.Render("Step 2/2: Anthropic API key") + "\n\n")
		b.WriteString(m.distillInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateDistill:
		b.WriteString(m.spinner.View() + " Validating Anthropic API key…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("mnemo start") + " to launch the daemon, then\n")
		b.WriteString(promptStyle.Render("mnemo items add") + " and " + promptStyle.Render("mnemo train") + " to build your knowledge base.\n")
		b.WriteString("Run " + promptStyle.Render("mnemo doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

// --- tea.Cmd factories ---

func validateKeyCmd(step initWizardStep, provider, key string) tea.Cmd {
	return func() tea.Msg {
		if err := embed.ValidateKey(context.Background(), initHTTPClient, provider, key); err != nil {
			return validationErrorMsg{step: step, err: err}
		}
		return validationSuccessMsg{step: step}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretsAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// --- Config generation (exported for tests) ---

// defaultEmbeddingModel returns the model the generated config names for a
// provider. Both defaults are 1536-dimensional so the vector store schema
// does not depend on the provider choice.
func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "google":
		return "gemini-embedding-001"
	default:
		return "text-embedding-3-small"
	}
}

// GenerateConfigYAML produces a minimal mnemo.yaml from the wizard result.
// API keys are referenced via keyring:// URIs; the actual secrets are stored
// separately via storeSecretsAndWriteConfig.
func GenerateConfigYAML(result initResult) string {
	providerKey := fmt.Sprintf("keyring://%s/%s_api_key", secrets.DefaultService, result.Provider)

	var sb strings.Builder
	sb.WriteString("# Mnemo configuration — generated by mnemo init\n")
	sb.WriteString("# https://github.com/mnemo-dev/mnemo\n\n")

	sb.WriteString("api:\n")
	sb.WriteString("  host: 127.0.0.1\n")
	sb.WriteString("  port: 7337\n\n")

	sb.WriteString("embedding:\n")
	sb.WriteString(fmt.Sprintf("  provider: %s\n", result.Provider))
	sb.WriteString(fmt.Sprintf("  model: \"%s\"\n", defaultEmbeddingModel(result.Provider)))
	sb.WriteString("  dimensions: 1536\n")
	sb.WriteString(fmt.Sprintf("  api_key: \"%s\"\n\n", providerKey))

	if result.DistillKey != "" {
		distillKey := fmt.Sprintf("keyring://%s/anthropic_api_key", secrets.DefaultService)
		sb.WriteString("distill:\n")
		sb.WriteString(fmt.Sprintf("  api_key: \"%s\"\n\n", distillKey))
	}

	sb.WriteString("training:\n")
	sb.WriteString("  chunk_size: 1000\n")
	sb.WriteString("  chunk_overlap: 200\n")
	sb.WriteString("  purge_on_edit: true\n")

	return sb.String()
}

// storeSecretsAndWriteConfig saves secrets to the OS keyring and writes the
// config YAML to the default config path.
//
// When forceOverwrite is false and the config file already exists, an error is
// returned asking the user to pass --force. When forceOverwrite is true the
// entire config is overwritten (full re-init). A smarter merge that preserves
// hand-edited sections is left as a future enhancement.
func storeSecretsAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	// Store the embedding provider API key.
	providerKeyName := result.Provider + "_api_key"
	if err := store.Set(secrets.DefaultService, providerKeyName, result.APIKey); err != nil {
		return "", mnemoerr.Errorf(mnemoerr.CodeSecretBackendFailure, "storing %s API key: %w", result.Provider, err)
	}

	// Store the distill key (skip when distilling was not configured).
	// NOTE: If config write fails below, secrets already stored in keyring are
	// not rolled back. This is acceptable — orphaned keyring entries are harmless
	// and will be overwritten on a successful re-run.
	if result.DistillKey != "" {
		if err := store.Set(secrets.DefaultService, "anthropic_api_key", result.DistillKey); err != nil {
			return "", mnemoerr.Errorf(mnemoerr.CodeSecretBackendFailure, "storing Anthropic API key: %w", err)
		}
	}

	// Write config file.
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	// Check for existing config unless --force is set.
	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", mnemoerr.Errorf(mnemoerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}

	yaml := GenerateConfigYAML(result)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		return "", mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	return cfgPath, nil
}

// configPathForWrite returns the default config path. Exported as a variable
// so tests can override it.
var configPathForWrite = config.DefaultConfigPath

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for Mnemo",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Choosing an embedding provider (OpenAI, Google) and storing its API key
  2. Optionally enabling chat transcript distilling (Anthropic)

API keys are stored securely in the OS keyring and referenced via
keyring:// URIs in the config file. No secrets are written in plain text.

After completion, run:
  mnemo start    — start the daemon
  mnemo train    — embed your knowledge items
  mnemo doctor   — verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().Bool("skip-distill", false, "Skip the transcript distilling step")
	cmd.Flags().Bool("force", false, "Overwrite existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	// Check if stdin is a terminal — if not, refuse to run interactively.
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"mnemo init requires an interactive terminal.\n"+
				"To configure Mnemo non-interactively, edit ~/.config/mnemo/mnemo.yaml directly.")
		return mnemoerr.New(mnemoerr.CodeCLISetupFailure, "mnemo init: not an interactive terminal")
	}

	skipDistill, _ := cmd.Flags().GetBool("skip-distill")
	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.skipDistill = skipDistill
	m.forceOverwrite = forceOverwrite

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return mnemoerr.New(mnemoerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}

	if fm.errFinal != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}

	// If user quit early (not done), that's fine — just return.
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
