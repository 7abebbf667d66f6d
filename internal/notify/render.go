package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"diningflow/internal/domain"
)

var messageTmpl = template.Must(template.New("recommendation").Parse(`
<div style="font-family:Arial,Helvetica,sans-serif">
{{if .Candidates}}
  <p>Here are {{len .Candidates}} {{.Cuisine}} suggestion(s) in {{.Location}} for {{.PartySize}} people on {{.Date}} at {{.Time}}:</p>
  <ul>
  {{range .Candidates}}<li>{{.}}</li>
  {{end}}</ul>
{{else}}
  <p>Sorry&mdash;we couldn't find any {{.Cuisine}} places in {{.Location}} right now.</p>
{{end}}
  <p style="color:#888;font-size:12px;margin-top:16px;">Sent {{.SentAt}}</p>
</div>
`))

type messageData struct {
	Cuisine    string
	Location   string
	PartySize  int
	Date       string
	Time       string
	Candidates []string
	SentAt     string
}

// Render produces the subject and HTML body for a fulfillment
// notification. A zero-candidate result still gets a message.
func Render(req domain.Request, candidates []string) (subject, body string, err error) {
	title := strings.Title(req.Cuisine)
	if len(candidates) == 0 {
		subject = fmt.Sprintf("No %s suggestions right now", title)
	} else {
		subject = fmt.Sprintf("%s picks for you", title)
	}
	var buf bytes.Buffer
	err = messageTmpl.Execute(&buf, messageData{
		Cuisine:    title,
		Location:   req.Location,
		PartySize:  req.PartySize,
		Date:       req.Date,
		Time:       req.Time,
		Candidates: candidates,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", "", fmt.Errorf("render notification: %w", err)
	}
	return subject, buf.String(), nil
}
