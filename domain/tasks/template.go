package tasks

import (
	"time"

	"github.com/aymerick/raymond"
)

// emailShell wraps the raw task body in the standard notification layout.
// Inline rather than on disk: the demo ships exactly one template.
const emailShell = `{{subject}}

{{body}}

--
Sent by {{service}} on {{date}}.`

var emailTemplate = raymond.MustParse(emailShell)

// renderEmailBody renders the plain text body for an outgoing email.
func renderEmailBody(args SendEmailArgs) (string, error) {
	return emailTemplate.Exec(map[string]any{
		"subject": args.Subject,
		"body":    args.Body,
		"service": "Pulse",
		"date":    time.Now().UTC().Format("2006-01-02"),
	})
}
