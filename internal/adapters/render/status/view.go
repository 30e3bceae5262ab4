package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/khaos-agent/internal/application"
	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 24

type RenderOptions struct {
	Now time.Time
	// StaleAfter marks the snapshot stale when its last update is older.
	// Zero disables the age check; the client's own stale flag still applies.
	StaleAfter time.Duration
}

func RenderStatus(report application.StatusReport, opts RenderOptions) (string, error) {
	return run(func(s styles) string { return renderStatus(report, opts, s) })
}

func RenderFinal(report application.FinalReport) (string, error) {
	return run(func(s styles) string { return renderFinal(report, s) })
}

func RenderMemory(summary application.MemorySummary, opts RenderOptions) (string, error) {
	return run(func(s styles) string { return renderMemory(summary, opts, s) })
}

// RenderConnection renders the client state on its own, as printed by probe.
func RenderConnection(status application.ClientStatus, opts RenderOptions) (string, error) {
	return run(func(s styles) string { return renderConnection(status, opts, s) })
}

func renderStatus(report application.StatusReport, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("KHAOS Status Report"),
		s.header.Render(fmt.Sprintf("session: %s", report.SessionID)),
		s.section.Render(s.persona.Render(fmt.Sprintf("%s (DNA %s)", report.PersonalityName, report.Fingerprint))),
		field(s, "heartbeat", aliveLabel(report.HeartbeatAlive, s)),
		field(s, "memory", memoryLine(report.MemoryFragments, domain.HeartbeatCap, s)),
		field(s, "prior sessions", s.detail.Render(fmt.Sprint(report.PriorSessions))),
		s.section.Render(renderConnection(report.Connection, opts, s)),
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderConnection(status application.ClientStatus, opts RenderOptions, s styles) string {
	state := status.ConnectionState()
	label := s.offline.Render(state.Label())
	if state.Connected {
		label = s.online.Render(state.Label())
	}

	parts := []string{
		field(s, "connection", label),
		field(s, "target", s.detail.Render(status.Target)),
	}

	if status.Snapshot == nil {
		if status.LastError != "" {
			parts = append(parts, field(s, "last error", s.warning.Render(status.LastError)))
		}
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	snap := status.Snapshot
	members := field(s, "members", s.detail.Render(fmt.Sprint(snap.MemberCount)))
	if isStale(status, opts) {
		members += " " + s.warning.Render("[stale]")
	}
	parts = append(parts,
		members,
		field(s, "active proposals", s.detail.Render(fmt.Sprint(snap.ActiveItemCount))),
		field(s, "treasury", s.detail.Render(snap.Treasury)),
	)
	if !status.LastUpdate.IsZero() {
		parts = append(parts, field(s, "updated", s.meta.Render(formatAge(status.LastUpdate, opts.Now))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderFinal(report application.FinalReport, s styles) string {
	lines := []string{
		s.title.Render("KHAOS Final Report"),
		s.header.Render(fmt.Sprintf("session: %s", report.SessionID)),
		s.section.Render(field(s, "runtime", s.detail.Render(FormatRuntime(report.Runtime)))),
		field(s, "heartbeat fragments", memoryLine(report.HeartbeatRecords, domain.HeartbeatCap, s)),
		field(s, "DAO interactions", memoryLine(report.StateUpdateRecords, domain.StateUpdateCap, s)),
		field(s, "sessions seen", s.detail.Render(fmt.Sprint(report.SessionsSeen))),
		field(s, "ticks", s.meta.Render(fmt.Sprintf("%d heartbeat, %d state", report.HeartbeatTicks, report.StateUpdateTicks))),
	}
	if report.SaveError != "" {
		lines = append(lines, s.warning.Render("memory not saved: "+report.SaveError))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderMemory(summary application.MemorySummary, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("KHAOS Memory"),
		s.header.Render(fmt.Sprintf("file: %s", summary.Path)),
	}

	if summary.Heartbeats == 0 && summary.StateUpdates == 0 && summary.Sessions == 0 {
		lines = append(lines, s.empty.Render("No memories yet. The agent has not run."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines,
		s.section.Render(field(s, "heartbeats", memoryLine(summary.Heartbeats, summary.HeartbeatCap, s))),
		field(s, "DAO interactions", memoryLine(summary.StateUpdates, summary.StateUpdateCap, s)),
		field(s, "sessions", s.detail.Render(fmt.Sprint(summary.Sessions))),
	)
	if summary.LastSession != "" {
		lines = append(lines, field(s, "last session", s.meta.Render(summary.LastSession)))
	}
	if !summary.LastHeartbeatAt.IsZero() {
		lines = append(lines, field(s, "last heartbeat", s.meta.Render(formatAge(summary.LastHeartbeatAt, opts.Now))))
	}
	if mix := categoryLine(summary.Categories); mix != "" {
		lines = append(lines, field(s, "voice", s.detail.Render(mix)))
	}
	if snap := summary.LastSnapshot; snap != nil {
		lines = append(lines, field(s, "last DAO state", s.detail.Render(
			fmt.Sprintf("%d members, %d proposals, %s", snap.MemberCount, snap.ActiveItemCount, snap.Treasury),
		)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// FormatRuntime renders a duration as whole hours, minutes and seconds.
func FormatRuntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}

func field(s styles, key, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render(key+":"), " ", value)
}

func aliveLabel(alive bool, s styles) string {
	if alive {
		return s.online.Render("active")
	}
	return s.offline.Render("dormant")
}

func memoryLine(count, capacity int, s styles) string {
	percent := 0.0
	if capacity > 0 {
		percent = float64(count) / float64(capacity) * 100
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		renderProgressBar(percent, barWidth, s),
		" ",
		lipgloss.NewStyle().Foreground(interpolateColor(percent, 0, 100)).Render(fmt.Sprintf("%d/%d", count, capacity)),
	)
}

func isStale(status application.ClientStatus, opts RenderOptions) bool {
	if status.Stale {
		return true
	}
	if opts.Now.IsZero() || opts.StaleAfter <= 0 || status.LastUpdate.IsZero() {
		return false
	}
	return opts.Now.Sub(status.LastUpdate) > opts.StaleAfter
}

func formatAge(at, now time.Time) string {
	if now.IsZero() {
		return at.UTC().Format(time.RFC3339)
	}

	age := now.Sub(at)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return at.UTC().Format("15:04 on 02 Jan")
	}
}

func categoryLine(categories map[domain.Category]int) string {
	parts := make([]string, 0, 3)
	for _, category := range []domain.Category{domain.CategorySarcastic, domain.CategoryPhilosophical, domain.CategoryHelpful} {
		if n := categories[category]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, category))
		}
	}
	return strings.Join(parts, ", ")
}

// renderProgressBar fills the bar left to right with the used share.
func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	filled := int(math.Round(float64(width) * used / 100))
	filled = min(max(filled, 0), width)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// 240 (faded grey) to 255 (bright white) on the 256-colour greyscale ramp.
	return lipgloss.Color(fmt.Sprintf("%d", int(240+15*normalized)))
}
