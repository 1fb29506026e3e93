package notifier

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/mr-karan/certwatch/pkg/models"
)

// Message is a composed notification ready to hand to a Sender.
type Message struct {
	Subject string
	HTML    string
}

type theme struct {
	Accent template.CSS
	Icon   template.HTML
	Action string
}

var themes = map[models.ItemType]theme{
	models.ItemTypeCertificate: {
		Accent: "#1d4ed8",
		Icon:   "&#128274;",
		Action: "Request a renewed certificate and deploy it before the expiry date.",
	},
	models.ItemTypeServiceID: {
		Accent: "#7c3aed",
		Icon:   "&#128273;",
		Action: "Rotate the service ID credentials and update every consumer before the expiry date.",
	},
}

var messageTmpl = template.Must(template.New("expiry").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #111827; margin: 0; padding: 24px;">
  <div style="max-width: 600px; margin: 0 auto; border: 1px solid #e5e7eb; border-radius: 8px; overflow: hidden;">
    <div style="background: {{.Theme.Accent}}; color: #ffffff; padding: 16px 24px;">
      <h2 style="margin: 0;">{{.Icon}} {{.Item.Type.Label}} Expiry Notice</h2>
    </div>
    {{- if .Urgent}}
    <div style="background: #fee2e2; color: #991b1b; padding: 12px 24px; font-weight: bold;">
      URGENT: this {{.Label}} expires in {{.Item.DaysRemaining}} {{.DayWord}}.
    </div>
    {{- end}}
    <div style="padding: 24px;">
      <table style="border-collapse: collapse; width: 100%;">
        <tr><td style="padding: 4px 0; color: #6b7280;">Name</td><td style="padding: 4px 0;"><strong>{{.Item.Name}}</strong></td></tr>
        <tr><td style="padding: 4px 0; color: #6b7280;">Type</td><td style="padding: 4px 0;">{{.Item.Type.Label}}</td></tr>
        <tr><td style="padding: 4px 0; color: #6b7280;">Expires</td><td style="padding: 4px 0;">{{.Expiry}}</td></tr>
        <tr><td style="padding: 4px 0; color: #6b7280;">Days remaining</td><td style="padding: 4px 0;">{{.Item.DaysRemaining}}</td></tr>
      </table>
      <p style="margin-top: 16px;">{{.Theme.Action}}</p>
      {{- if .Link}}
      <p><a href="{{.Link}}" style="color: {{.Theme.Accent}};">Open in certwatch</a></p>
      {{- end}}
    </div>
  </div>
</body>
</html>
`))

// Composer builds notification messages.
type Composer struct {
	// UrgentWithinDays marks messages urgent when days remaining is at or below it.
	UrgentWithinDays int
	// BaseURL, when set, adds a link back to the portal.
	BaseURL string
}

// IsUrgent reports whether an item with the given days remaining is urgent.
func (c Composer) IsUrgent(daysRemaining int) bool {
	return daysRemaining <= c.UrgentWithinDays
}

// Compose renders the subject and HTML body for item.
func (c Composer) Compose(item models.ExpiringItem) (Message, error) {
	th, ok := themes[item.Type]
	if !ok {
		return Message{}, fmt.Errorf("unknown item type %q", item.Type)
	}
	urgent := c.IsUrgent(item.DaysRemaining)

	dayWord := "days"
	if item.DaysRemaining == 1 {
		dayWord = "day"
	}

	var buf bytes.Buffer
	err := messageTmpl.Execute(&buf, map[string]any{
		"Item":    item,
		"Theme":   th,
		"Icon":    th.Icon,
		"Label":   item.Type.Label(),
		"Urgent":  urgent,
		"DayWord": dayWord,
		"Expiry":  item.ExpiryDate.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
		"Link":    c.BaseURL,
	})
	if err != nil {
		return Message{}, fmt.Errorf("rendering message for %s: %w", item.ID, err)
	}

	subject := fmt.Sprintf("%s expiring in %d %s: %s", item.Type.Label(), item.DaysRemaining, dayWord, item.Name)
	if urgent {
		subject = "[URGENT] " + subject
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

// ComposeMessage renders item with the default 30 day urgency window.
func ComposeMessage(item models.ExpiringItem) (Message, error) {
	return Composer{UrgentWithinDays: 30}.Compose(item)
}
