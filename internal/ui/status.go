// Package ui renders the latest snapshot for terminal output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"hostmon/internal/query"
)

var (
	primaryColor = lipgloss.Color("#5B9BD5")
	successColor = lipgloss.Color("#2ECC71")
	warningColor = lipgloss.Color("#F1C40F")
	errorColor   = lipgloss.Color("#E74C3C")
	subtextColor = lipgloss.Color("#B0B0B0")
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	keyStyle   = lipgloss.NewStyle().Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(subtextColor)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)
)

func statusStyle(status string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch status {
	case "Primary":
		return s.Foreground(successColor)
	case "Standby":
		return s.Foreground(warningColor)
	default:
		return s.Foreground(errorColor)
	}
}

// RenderStatus lays the snapshot out as a bordered key/value box.
func RenderStatus(s query.Snapshot) string {
	rows := [][2]string{
		{"Database", statusStyle(s.DBStatus).Render(s.DBStatus)},
		{"Sampled at", valueStyle.Render(s.Timestamp)},
		{"Host IP", valueStyle.Render(s.HostIP)},
		{"CPU", valueStyle.Render(fmt.Sprintf("%.2f%%", s.CPUUsage))},
		{"Memory", valueStyle.Render(fmt.Sprintf("%.2f%% (%s / %s)", s.MemoryUsage, mb(s.MemoryUsed), mb(s.MemoryTotal)))},
		{"Ping", valueStyle.Render(fmt.Sprintf("%.2f ms", s.PingLatency))},
	}
	lines := []string{titleStyle.Render(s.ServerID)}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(r[0]), r[1]))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func mb(v int64) string {
	return fmt.Sprintf("%.1f MB", float64(v)/1024.0/1024.0)
}
