package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
)

var (
	colorPending = lipgloss.Color("208")
	colorDone    = lipgloss.Color("78")
	colorDim     = lipgloss.Color("240")
	colorTitle   = lipgloss.Color("51")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	idWidth     = 38
	statusWidth = 10
	timeWidth   = 22
)

func statusStyle(s incident.Status) lipgloss.Style {
	if s == incident.StatusResolved {
		return lipgloss.NewStyle().Foreground(colorDone).Bold(true)
	}

	return lipgloss.NewStyle().Foreground(colorPending).Bold(true)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.UTC().Format(time.RFC3339)
}

// renderIncident renders one incident as a short block.
func renderIncident(inc *incident.Incident) string {
	lines := []string{
		headerStyle.Render(inc.Title) + "  " + statusStyle(inc.Status).Render(string(inc.Status)),
		dimStyle.Render(fmt.Sprintf("id %s  sensor %s  location %s", inc.ID, inc.SensorID, inc.Location)),
		dimStyle.Render("created " + formatTime(inc.CreatedAt)),
	}

	if inc.Resolved() {
		lines = append(lines, dimStyle.Render("resolved "+formatTime(inc.ResolvedAt)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderTable renders the incidents of a sensor as aligned columns.
func renderTable(sensorID string, list []*incident.Incident) string {
	if len(list) == 0 {
		return dimStyle.Render("No incidents for sensor " + sensorID)
	}

	idCol := lipgloss.NewStyle().Width(idWidth)
	statusCol := lipgloss.NewStyle().Width(statusWidth)
	timeCol := lipgloss.NewStyle().Width(timeWidth)

	var sb strings.Builder

	sb.WriteString(headerStyle.Render(fmt.Sprintf("Incidents of %s (%d)", sensorID, len(list))))
	sb.WriteString("\n")
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		idCol.Render(dimStyle.Render("ID")),
		statusCol.Render(dimStyle.Render("STATUS")),
		timeCol.Render(dimStyle.Render("CREATED")),
		dimStyle.Render("TITLE")))

	for _, inc := range list {
		sb.WriteString("\n")
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			idCol.Render(inc.ID),
			statusCol.Render(statusStyle(inc.Status).Render(string(inc.Status))),
			timeCol.Render(formatTime(inc.CreatedAt)),
			inc.Title))
	}

	return sb.String()
}
