package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/medconsult-liberia/medconsult/internal/jobs"
)

// Message is a plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through an unauthenticated relay such as Mailpit.
// STARTTLS is used when the relay offers it.
type SMTPMailer struct {
	host string
	port int
	from string
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, from: from}
}

// Send implements Mailer. Dialing and the SMTP conversation both stop when
// ctx is done.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := m.buildMessage(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.host, mail.WithPort(m.port), mail.WithTLSPolicy(mail.TLSOpportunistic))
	if err != nil {
		return fmt.Errorf("jobs: smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("jobs: send mail: %w", err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(msg Message) (*mail.Msg, error) {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.ToName, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, fmt.Errorf("jobs: invalid header value")
	}
	out := mail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("jobs: sender: %w", err)
	}
	var err error
	if name := strings.NewReplacer(`"`, "", `\`, "").Replace(msg.ToName); name != "" {
		err = out.AddToFormat(name, msg.To)
	} else {
		err = out.To(msg.To)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

var remittanceBody = template.Must(template.New("remittance").Parse(`Dear {{.Name}},

A payment of {{.Amount}} has been recorded for you by MedConsult Liberia.

Method:    {{.Method}}
Reference: {{.Reference}}
{{- if .Period}}
Period:    {{.Period}}
{{- end}}
Date:      {{.Date}}

This is an automated remittance notice. Reply to this address with any questions.
`))

// RemittanceNotifier handles TaskRemittanceNotice.
type RemittanceNotifier struct {
	mailer  Mailer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	printer *message.Printer
}

// NewRemittanceNotifier constructs the task handler.
func NewRemittanceNotifier(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RemittanceNotifier {
	return &RemittanceNotifier{mailer: mailer, logger: logger, metrics: metrics, printer: message.NewPrinter(language.AmericanEnglish)}
}

// Compose renders the notice for payload.
func (n *RemittanceNotifier) Compose(payload RemittancePayload) (Message, error) {
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return Message{}, fmt.Errorf("jobs: remittance amount: %w", err)
	}
	f, _ := amount.Round(2).Float64()
	period := ""
	if payload.PeriodStart != "" || payload.PeriodEnd != "" {
		period = strings.TrimSpace(payload.PeriodStart + " to " + payload.PeriodEnd)
	}
	data := struct {
		Name, Amount, Method, Reference, Period, Date string
	}{
		Name:      payload.RecipientName,
		Amount:    n.printer.Sprintf("$%.2f", f),
		Method:    payload.Method,
		Reference: payload.Reference,
		Period:    period,
		Date:      payload.PaidAt.Format("2 January 2006"),
	}
	var body bytes.Buffer
	if err := remittanceBody.Execute(&body, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		Subject: "Remittance notice: " + data.Amount,
		Body:    body.String(),
	}, nil
}

// Handle processes TaskRemittanceNotice tasks.
func (n *RemittanceNotifier) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := n.metrics.Track(TaskRemittanceNotice)
	var payload RemittancePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
	}
	if payload.RecipientEmail == "" {
		return tracker.End(nil)
	}
	msg, err := n.Compose(payload)
	if err != nil {
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return tracker.End(err)
	}
	if n.logger != nil {
		n.logger.Info("remittance notice sent", slog.Int64("payment_id", payload.PaymentID), slog.String("payment_type", payload.PaymentType))
	}
	return tracker.End(nil)
}
