// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [id...]",
		Short: "Embed knowledge items into the vector store",
		Long: "Start a training batch on the daemon and follow its progress stream.\n" +
			"Without ids, every untrained item is trained; --retrain re-embeds items\n" +
			"that already have vectors, replacing their existing records.",
		RunE: runTrain,
	}

	addAddressFlag(cmd)
	cmd.Flags().BoolP("retrain", "r", false, "delete existing vectors and re-embed the selection")
	cmd.Flags().StringP("pool", "p", "", "narrow the untrained selection to one pool (library or chat)")
	cmd.Flags().Bool("plain", false, "line-oriented output instead of the progress UI")

	return cmd
}

func runTrain(cmd *cobra.Command, args []string) error {
	retrain, _ := cmd.Flags().GetBool("retrain")
	pool, _ := cmd.Flags().GetString("pool")
	plain, _ := cmd.Flags().GetBool("plain")

	if retrain && len(args) == 0 {
		return mnemoerr.New(mnemoerr.CodeCLIInputInvalid,
			"--retrain requires explicit item ids; retraining is never implicit")
	}

	client := clientFromFlags(cmd)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events, err := client.streamTraining(ctx, trainingRequest{
		ItemIDs: args,
		Pool:    pool,
		Retrain: retrain,
	})
	if err != nil {
		return err
	}

	useTUI := !plain
	if f, ok := cmd.OutOrStdout().(*os.File); !ok || !isTerminal(f) {
		useTUI = false
	}
	if useTUI {
		return followTrainingTUI(events)
	}
	return followTrainingPlain(cmd, events)
}

// followTrainingPlain prints one line per progress frame.
func followTrainingPlain(cmd *cobra.Command, events <-chan train.ProgressEvent) error {
	out := cmd.OutOrStdout()
	var tally *train.Tally

	for ev := range events {
		switch ev.Type {
		case train.EventStart:
			_, _ = fmt.Fprintf(out, "training %d item(s)\n", ev.Total)
		case train.EventProgress:
			_, _ = fmt.Fprintf(out, "[%d/%d] %s\n", ev.Current, ev.Total, ev.Message)
		case train.EventWarning:
			_, _ = fmt.Fprintf(out, "[%d/%d] skipped: %s\n", ev.Current, ev.Total, ev.Message)
		case train.EventSuccess:
			_, _ = fmt.Fprintf(out, "[%d/%d] trained: %s\n", ev.Current, ev.Total, ev.Message)
		case train.EventError:
			_, _ = fmt.Fprintf(out, "[%d/%d] error: %s\n", ev.Current, ev.Total, ev.Message)
		case train.EventComplete:
			tally = ev.Tally
			_, _ = fmt.Fprintln(out, ev.Message)
		}
	}

	return trainingOutcome(tally)
}

// trainingOutcome turns the final tally into the command's exit status. A
// stream that ended without a complete frame is a disconnect.
func trainingOutcome(tally *train.Tally) error {
	if tally == nil {
		return mnemoerr.New(mnemoerr.CodeCLIResponseInvalid,
			"training stream ended without a complete frame; check item state with 'mnemo items list'")
	}
	if tally.Failed > 0 {
		return mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure,
			"%d item(s) failed to train (%d trained, %d skipped)", tally.Failed, tally.Trained, tally.Skipped)
	}
	return nil
}

// --- bubbletea progress UI ---

var (
	trainTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	trainSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	trainWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	trainErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	trainDimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// trainEventMsg wraps one progress frame for the tea loop.
type trainEventMsg train.ProgressEvent

// trainStreamClosedMsg signals the SSE stream ended.
type trainStreamClosedMsg struct{}

// maxTrainLog bounds how many per-item outcome lines stay on screen.
const maxTrainLog = 8

type trainModel struct {
	events <-chan train.ProgressEvent

	spinner spinner.Model
	bar     progress.Model

	total   int
	current int
	status  string
	log     []string
	tally   *train.Tally
	closed  bool
}

func newTrainModel(events <-chan train.ProgressEvent) trainModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bar := progress.New(progress.WithDefaultGradient())

	return trainModel{
		events:  events,
		spinner: sp,
		bar:     bar,
		status:  "waiting for the daemon…",
	}
}

// waitForEvent delivers the next progress frame to Update.
func waitForEvent(events <-chan train.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return trainStreamClosedMsg{}
		}
		return trainEventMsg(ev)
	}
}

func (m trainModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m trainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			// Quitting drops the stream; the daemon sees the disconnect and
			// cancels the remaining items.
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case trainEventMsg:
		return m.handleEvent(train.ProgressEvent(msg))

	case trainStreamClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	return m, nil
}

func (m trainModel) handleEvent(ev train.ProgressEvent) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForEvent(m.events)}

	switch ev.Type {
	case train.EventStart:
		m.total = ev.Total
		m.status = ev.Message
	case train.EventProgress:
		m.current = ev.Current
		m.status = ev.Message
		if m.total > 0 {
			cmds = append(cmds, m.bar.SetPercent(float64(ev.Current-1)/float64(m.total)))
		}
	case train.EventWarning:
		m.appendLog(trainWarnStyle.Render("skip  ") + ev.Message)
	case train.EventSuccess:
		m.appendLog(trainSuccessStyle.Render("ok    ") + ev.Message)
		if m.total > 0 {
			cmds = append(cmds, m.bar.SetPercent(float64(ev.Current)/float64(m.total)))
		}
	case train.EventError:
		m.appendLog(trainErrorStyle.Render("error ") + ev.Message)
	case train.EventComplete:
		m.tally = ev.Tally
		m.status = ev.Message
		cmds = append(cmds, m.bar.SetPercent(1))
	}

	return m, tea.Batch(cmds...)
}

func (m *trainModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxTrainLog {
		m.log = m.log[len(m.log)-maxTrainLog:]
	}
}

func (m trainModel) View() string {
	var b strings.Builder

	b.WriteString(trainTitleStyle.Render("  mnemo training  ") + "\n\n")

	if m.tally == nil {
		b.WriteString(m.spinner.View() + " " + m.status + "\n")
	} else {
		b.WriteString(m.status + "\n")
	}
	if m.total > 0 {
		b.WriteString(m.bar.View() + "\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString("  " + line + "\n")
		}
	}

	if m.tally != nil {
		b.WriteString("\n" + trainDimStyle.Render(fmt.Sprintf(
			"trained %d  failed %d  skipped %d", m.tally.Trained, m.tally.Failed, m.tally.Skipped)) + "\n")
	} else {
		b.WriteString("\n" + trainDimStyle.Render("ctrl+c to cancel remaining items") + "\n")
	}

	return b.String()
}

// followTrainingTUI runs the progress UI until the stream closes.
func followTrainingTUI(events <-chan train.ProgressEvent) error {
	p := tea.NewProgram(newTrainModel(events))
	finalModel, err := p.Run()
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "progress UI error: %w", err)
	}

	fm, ok := finalModel.(trainModel)
	if !ok {
		return mnemoerr.New(mnemoerr.CodeCLISetupFailure, "unexpected model type after progress UI")
	}
	return trainingOutcome(fm.tally)
}
