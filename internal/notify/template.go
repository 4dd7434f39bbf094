package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
)

const (
	reportTemplate = `New incident reported.
Sensor: {{.SensorID}}
Location: {{.Location}}
Title: {{.Title}}
{{.Message}}`

	resolutionTemplate = `Incident "{{.Title}}" for sensor {{.SensorID}} was resolved.
Location: {{.Location}}
{{- if not .ResolvedAt.IsZero}}
Resolved at: {{.ResolvedAt.Format "` + time.DateTime + `"}}
{{- end}}`
)

//nolint:gochecknoglobals // Parsed once, read only.
var (
	reportTpl     = template.Must(template.New("report").Parse(reportTemplate))
	resolutionTpl = template.Must(template.New("resolution").Parse(resolutionTemplate))
)

// ReportEmail builds the email sent to the administrator when a report is submitted.
func ReportEmail(recipient string, draft incident.Draft) (Message, error) {
	body, err := render(reportTpl, draft)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Channel:   Email,
		Recipient: recipient,
		Title:     "New incident: " + draft.Title,
		Body:      body,
	}, nil
}

// ResolutionMessages builds the email and the local notification for a resolved incident.
// The email is omitted when recipient is empty.
func ResolutionMessages(recipient string, inc *incident.Incident) ([]Message, error) {
	body, err := render(resolutionTpl, inc)
	if err != nil {
		return nil, err
	}

	title := "Incident resolved: " + inc.Title
	messages := []Message{{Channel: Local, Title: title, Body: body}}

	if recipient != "" {
		messages = append(messages, Message{
			Channel:   Email,
			Recipient: recipient,
			Title:     title,
			Body:      body,
		})
	}

	return messages, nil
}

func render(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s notification: %w", tpl.Name(), err)
	}

	return buf.String(), nil
}
