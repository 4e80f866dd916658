package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/util"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Summary is what the download command prints once a session ends.
type Summary struct {
	Book     string
	Final    progress.Snapshot
	Chapters int64
	Failed   int64
	Volumes  []string
	Bytes    int64
	Elapsed  time.Duration
}

func (s Summary) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Download Summary"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	if s.Book != "" {
		row("Book:", s.Book)
	}
	row("Result:", resultStyle(s.Final.Kind).Render(string(s.Final.Kind)))
	if s.Final.Status != "" {
		row("Status:", s.Final.Status)
	}
	if s.Final.Detail != "" {
		row("Detail:", s.Final.Detail)
	}
	row("Chapters:", fmt.Sprintf("%d", s.Chapters))
	if s.Failed > 0 {
		row("Failed:", warnStyle.Render(fmt.Sprintf("%d", s.Failed)))
	}
	row("Volumes:", fmt.Sprintf("%d", len(s.Volumes)))
	for _, v := range s.Volumes {
		b.WriteString(labelStyle.Render(""))
		b.WriteString("  " + v + "\n")
	}
	row("Data:", fmt.Sprintf("%s (%s)", util.Human(s.Bytes), util.Rate(s.Bytes, s.Elapsed)))
	row("Time:", s.Elapsed.Round(time.Second).String())

	return b.String()
}

func (s Summary) Print(w io.Writer) {
	_, _ = fmt.Fprint(w, s.Render())
}

func resultStyle(k progress.Kind) lipgloss.Style {
	switch k {
	case progress.KindComplete:
		return okStyle
	case progress.KindStopped:
		return warnStyle
	default:
		return errStyle
	}
}
