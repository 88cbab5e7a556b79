package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"townhall/internal/api"
	"townhall/internal/queue"
	"townhall/internal/queueaccess"
)

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type watchSnapshot struct {
	stats  api.QueueStats
	active []api.Job
	failed []api.Job
	at     time.Time
}

type watchSnapshotMsg struct {
	snapshot watchSnapshot
	err      error
}

type watchTickMsg time.Time

type watchFetchFunc func(ctx context.Context) (watchSnapshot, error)

type watchModel struct {
	ctx      context.Context
	fetch    watchFetchFunc
	interval time.Duration
	source   string

	snapshot watchSnapshot
	loaded   bool
	err      error
	now      func() time.Time
}

func newQueueWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of queue counts and active jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return errors.New("queue watch requires an interactive terminal (TTY)")
			}
			if interval < 500*time.Millisecond {
				interval = 500 * time.Millisecond
			}
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				m := newWatchModel(cmd.Context(), accessFetcher(access), interval, access.Remote())
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				if errors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Second, "Refresh interval")
	return cmd
}

func accessFetcher(access queueaccess.Access) watchFetchFunc {
	return func(ctx context.Context) (watchSnapshot, error) {
		stats, err := access.Stats(ctx)
		if err != nil {
			return watchSnapshot{}, err
		}
		active, err := access.List(ctx, []string{string(queue.StatusInProgress)})
		if err != nil {
			return watchSnapshot{}, err
		}
		failed, err := access.List(ctx, []string{string(queue.StatusFailed)})
		if err != nil {
			return watchSnapshot{}, err
		}
		return watchSnapshot{
			stats:  stats,
			active: api.SortJobsNewestFirst(active),
			failed: api.SortJobsNewestFirst(failed),
			at:     time.Now(),
		}, nil
	}
}

func newWatchModel(ctx context.Context, fetch watchFetchFunc, interval time.Duration, remote bool) watchModel {
	source := "local store"
	if remote {
		source = "daemon API"
	}
	return watchModel{
		ctx:      ctx,
		fetch:    fetch,
		interval: interval,
		source:   source,
		now:      time.Now,
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.fetchCmd()
}

func (m watchModel) fetchCmd() tea.Cmd {
	ctx, fetch := m.ctx, m.fetch
	return func() tea.Msg {
		snapshot, err := fetch(ctx)
		return watchSnapshotMsg{snapshot: snapshot, err: err}
	}
}

func (m watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
	case watchSnapshotMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.snapshot = msg.snapshot
			m.loaded = true
		}
		return m, m.tickCmd()
	case watchTickMsg:
		return m, m.fetchCmd()
	}
	return m, nil
}

func (m watchModel) View() string {
	header := watchTitleStyle.Render("townhall queue") + "  " + watchMutedStyle.Render(fmt.Sprintf("via %s, every %s", m.source, m.interval))
	hints := watchMutedStyle.Render("r refresh  q quit")

	if !m.loaded && m.err == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, "Loading...", hints)
	}

	var b strings.Builder
	stats := m.snapshot.stats
	fmt.Fprintf(&b, "Queued %d  In Progress %d  Completed %d  Failed %d  Total %d\n",
		stats.Queued, stats.InProgress, stats.Completed, stats.Failed, stats.Total)

	now := m.now()
	b.WriteString("\n" + watchActiveStyle.Render("Encoding") + "\n")
	if len(m.snapshot.active) == 0 {
		b.WriteString(watchMutedStyle.Render("  idle") + "\n")
	}
	for _, job := range m.snapshot.active {
		fmt.Fprintf(&b, "  %s  %s  attempt %d/%d  lease %s\n",
			shortID(job.ID), truncate(job.VideoID, 32), job.Attempts, job.MaxAttempts, leaseLabel(job.LeaseExpiresAt, now))
	}

	if len(m.snapshot.failed) > 0 {
		b.WriteString("\n" + watchErrorStyle.Render("Failed") + "\n")
		limit := len(m.snapshot.failed)
		if limit > 5 {
			limit = 5
		}
		for _, job := range m.snapshot.failed[:limit] {
			fmt.Fprintf(&b, "  %s  %s  %s ago  %s\n",
				shortID(job.ID), truncate(job.VideoID, 32), sinceLabel(job.UpdatedAt, now), truncate(job.LastError, 48))
		}
	}

	status := watchMutedStyle.Render("updated " + m.snapshot.at.Format("15:04:05"))
	if m.err != nil {
		status = watchErrorStyle.Render("refresh failed: " + m.err.Error())
	}
	panel := watchPanelStyle.Render(strings.TrimRight(b.String(), "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, status, hints)
}

func leaseLabel(expiresAt string, now time.Time) string {
	t := api.ParseTime(expiresAt)
	if t.IsZero() {
		return "-"
	}
	remaining := t.Sub(now).Round(time.Second)
	if remaining <= 0 {
		return "expired"
	}
	return remaining.String() + " left"
}
