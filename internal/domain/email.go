package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// EventEmailData is the template data of every event notification.
type EventEmailData struct {
	Email     string
	Name      string
	EventID   string
	Title     string
	When      string
	VenueName string
	Deadline  string
	Reason    string
}
