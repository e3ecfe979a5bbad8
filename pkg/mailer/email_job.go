package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Template (+Data) or Subject/Text/HTML is set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // verify_email, reset_password, password_changed
	Data     map[string]any `json:"data,omitempty"`
}

// Normalize makes sure templates can always address the recipient.
func (j *EmailJob) Normalize() {
	if j.Data == nil {
		j.Data = map[string]any{}
	}
	for _, k := range []string{"Email", "RecipientEmail"} {
		if v, ok := j.Data[k].(string); !ok || v == "" {
			j.Data[k] = j.To
		}
	}
}

// Dispatcher hands an email job to whatever delivers it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job EmailJob) error
}

// LogDispatcher records jobs instead of sending them. Used when
// MAIL_SEND_ENABLED is off. Job data carries links with tokens, so only
// the envelope is logged.
type LogDispatcher struct {
	Logger logrus.FieldLogger
}

func (d LogDispatcher) Dispatch(_ context.Context, job EmailJob) error {
	d.Logger.WithFields(logrus.Fields{"to": job.To, "template": job.Template}).Info("email dispatch skipped (mail disabled)")
	return nil
}
