// Package mailer turns order jobs from the queue into transactional emails.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"paintball-ticketing/internal/config"
	"paintball-ticketing/internal/kafka"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/retry"

	"gopkg.in/gomail.v2"
)

var ErrNoRecipient = errors.New("notification has no customer email")

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Sender struct {
	dialer Dialer
	from   string
	log    *logger.Logger
	Retry  retry.Policy
}

func NewSender(cfg config.EmailConfig, log *logger.Logger) *Sender {
	return NewSenderWithDialer(gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), cfg.From, log)
}

func NewSenderWithDialer(d Dialer, from string, log *logger.Logger) *Sender {
	return &Sender{
		dialer: d,
		from:   from,
		log:    log,
		Retry: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Retryable:       func(error) bool { return true },
		},
	}
}

type message struct {
	subject *template.Template
	body    *template.Template
}

func subjectLine(name, text string) *template.Template {
	return template.Must(template.New(name + "-subject").Parse(text))
}

var messages = map[string]message{
	models.EventOrderCreated: {
		subject: subjectLine("created", "Your paintball order {{.OrderNumber}}"),
		body: template.Must(template.New("created").Parse(`Hi {{.CustomerName}},

Thanks for booking with us. Order {{.OrderNumber}} is reserved:

  Tickets: {{.Quantity}}
  Amount:  {{.Amount.StringFixed 2}}
{{- if .SessionLabel}}
  Session: {{.SessionLabel}}
{{- end}}

Your tickets will be activated as soon as payment is confirmed.
`)),
	},
	models.EventOrderPaymentConfirmed: {
		subject: subjectLine("paid", "Payment received for {{.OrderNumber}}"),
		body: template.Must(template.New("paid").Parse(`Hi {{.CustomerName}},

We received your payment of {{.Amount.StringFixed 2}} for order {{.OrderNumber}}.
Your ticket codes:
{{range .TicketCodes}}
  {{.}}
{{- end}}
{{if .ValidUntil}}
Tickets are valid until {{.ValidUntil.Format "2006-01-02"}}.
{{- end}}
Show the QR code or read out the ticket code at the gate.
`)),
	},
	models.EventOrderRefunded: {
		subject: subjectLine("refunded", "Refund for {{.OrderNumber}}"),
		body: template.Must(template.New("refunded").Parse(`Hi {{.CustomerName}},

Order {{.OrderNumber}} has been refunded ({{.Amount.StringFixed 2}}) and its tickets are no longer valid.
{{- if .Reason}}
Reason: {{.Reason}}
{{- end}}
`)),
	},
}

// HandleJob is a kafka.Handler. Unknown events are skipped.
func (s *Sender) HandleJob(ctx context.Context, job kafka.Job) error {
	tmpl, ok := messages[job.Event]
	if !ok {
		s.log.Debug("MAILER", fmt.Sprintf("no email for event %s", job.Event))
		return nil
	}

	var n models.OrderNotification
	if err := job.Decode(&n); err != nil {
		return fmt.Errorf("decode %s job: %w", job.Event, err)
	}
	if n.CustomerEmail == "" {
		return fmt.Errorf("%s for %s: %w", job.Event, n.OrderNumber, ErrNoRecipient)
	}

	m, err := s.compose(tmpl, n)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, s.Retry, func(context.Context) error {
		return s.dialer.DialAndSend(m)
	})
	if err != nil {
		return fmt.Errorf("send %s email for %s: %w", job.Event, n.OrderNumber, err)
	}
	s.log.Info("MAILER", fmt.Sprintf("sent %s email for %s to %s", job.Event, n.OrderNumber, n.CustomerEmail))
	return nil
}

func (s *Sender) compose(tmpl message, n models.OrderNotification) (*gomail.Message, error) {
	subject, err := render(tmpl.subject, n)
	if err != nil {
		return nil, err
	}
	body, err := render(tmpl.body, n)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.CustomerEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
