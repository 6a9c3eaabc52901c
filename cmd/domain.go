package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sportstream/internal/domain"
	"sportstream/internal/httputil"
	"sportstream/internal/media"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Inspect and manage embed domains",
}

var domainStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show each domain and the remembered working domain",
	Args:  cobra.NoArgs,
	RunE:  domainStatusRun,
}

var domainProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Find a reachable domain and remember it",
	Args:  cobra.NoArgs,
	RunE:  domainProbeRun,
}

var domainFailCmd = &cobra.Command{
	Use:   "fail <domain-url>",
	Short: "Mark a domain failed and print the next candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  domainFailRun,
}

var domainNextCmd = &cobra.Command{
	Use:   "next <domain-url>",
	Short: "Print the domain after the given one in priority order",
	Args:  cobra.ExactArgs(1),
	RunE:  domainNextRun,
}

var domainResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the remembered domain",
	Args:  cobra.NoArgs,
	RunE:  domainResetRun,
}

var domainEmbedCmd = &cobra.Command{
	Use:   "embed <source> <match-id> [stream-no]",
	Short: "Build an embed URL on the current domain",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  domainEmbedRun,
}

var domainWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-probe domains on the configured schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE:  domainWatchRun,
}

func init() {
	domainCmd.AddCommand(domainStatusCmd, domainProbeCmd, domainFailCmd, domainNextCmd,
		domainResetCmd, domainEmbedCmd, domainWatchCmd)
}

func domainStatusRun(cmd *cobra.Command, args []string) error {
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	st := m.Status(cmd.Context())
	if flagJSON {
		return printJSON(st)
	}
	fmt.Print(renderStatus(st, term.IsTerminal(int(os.Stdout.Fd()))))
	return nil
}

func domainProbeRun(cmd *cobra.Command, args []string) error {
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	return printDomain(m.ResolveWorkingDomain(cmd.Context()))
}

// domainFailRun marks the domain failed. The failed set lives only as long as the
// process, so what persists is the invalidated marker.
func domainFailRun(cmd *cobra.Command, args []string) error {
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	d, err := findDomain(m, args[0])
	if err != nil {
		return err
	}
	if err := m.MarkFailed(cmd.Context(), d); err != nil {
		return fmt.Errorf("marking %s failed: %w", d.URL, err)
	}

	next, ok := m.NextAfter(d).Get()
	if !ok {
		return fmt.Errorf("no domain after %s", d.URL)
	}
	return printDomain(next)
}

func domainNextRun(cmd *cobra.Command, args []string) error {
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	d, err := findDomain(m, args[0])
	if err != nil {
		return err
	}
	next, ok := m.NextAfter(d).Get()
	if !ok {
		return fmt.Errorf("no domain after %s", d.URL)
	}
	return printDomain(next)
}

func domainResetRun(cmd *cobra.Command, args []string) error {
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := m.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("resetting domain state: %w", err)
	}
	if !flagJSON {
		fmt.Println("Domain state cleared.")
	}
	return nil
}

func domainEmbedRun(cmd *cobra.Command, args []string) error {
	source, matchID := args[0], args[1]
	if err := httputil.ValidateID(source); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	if err := httputil.ValidateID(matchID); err != nil {
		return fmt.Errorf("invalid match id: %w", err)
	}

	n := 1
	if len(args) == 3 {
		v, err := strconv.Atoi(args[2])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid stream number %q", args[2])
		}
		n = v
	}

	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	embed := m.EmbedURL(m.CurrentDomain(cmd.Context()), source, matchID, n)
	if flagJSON {
		return printJSON(map[string]string{"embedUrl": embed})
	}
	fmt.Println(embed)
	return nil
}

func domainWatchRun(cmd *cobra.Command, args []string) error {
	m, closeStore, err := newDomainManager()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	log := logger("cli")

	printDomain(m.ResolveWorkingDomain(ctx))
	log.WithField("schedule", cfg.ProbeSchedule).Info("watching domains")

	return m.Schedule(ctx, cfg.ProbeSchedule, func(d media.EmbedDomain) {
		printDomain(d)
	})
}

func printDomain(d media.EmbedDomain) error {
	if flagJSON {
		return printJSON(d)
	}
	fmt.Println(d.URL)
	return nil
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// renderStatus formats a status snapshot. Styling is applied only when styled is set.
func renderStatus(st domain.Status, styled bool) string {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString(render(headerStyle, "Domains") + "\n")
	for i, ds := range st.Domains {
		mark, style := " ", dimStyle
		note := ""
		switch {
		case ds.Current:
			mark, style = "*", currentStyle
			note = "current"
		case ds.Failed:
			mark, style = "x", failedStyle
			note = "failed"
		}
		line := fmt.Sprintf("%s %d. %s (%s)", mark, i+1, ds.Domain.URL, ds.Domain.Format)
		if note != "" {
			line += "  " + note
		}
		b.WriteString(render(style, line) + "\n")
	}

	b.WriteString("\n" + render(headerStyle, "Marker") + "\n")
	if st.Marker.IsZero() {
		b.WriteString("none\n")
		return b.String()
	}
	freshness := "expired"
	if st.MarkerFresh {
		freshness = "fresh"
	}
	fmt.Fprintf(&b, "%s  saved %s (%s)\n", st.Marker.Domain, st.Marker.Time().Format(time.RFC3339), freshness)
	return b.String()
}
