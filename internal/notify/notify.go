package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"draftlab/analytics/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier receives operational alerts
type Notifier interface {
	AggregationFailed(ctx context.Context, mode string, err error) error
	IndexRequested(ctx context.Context, req models.IndexRequest) error
}

// Log writes alerts to the log only
type Log struct{}

func (Log) AggregationFailed(ctx context.Context, mode string, err error) error {
	log.Error().Err(err).Str("mode", mode).Msg("Aggregation failed")
	return nil
}

func (Log) IndexRequested(ctx context.Context, req models.IndexRequest) error {
	log.Warn().
		Str("index_url", req.IndexURL).
		Str("query", req.QueryDetails).
		Str("screen", req.Screen).
		Msg("Query needs a composite index")
	return nil
}

// Message is a rendered alert
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// SendFunc delivers a message and reports the provider status code
type SendFunc func(ctx context.Context, msg *mail.SGMailV3) (int, string, error)

// Email sends alerts through SendGrid and also logs them
type Email struct {
	from *mail.Email
	to   *mail.Email
	send SendFunc
}

// NewEmail creates a SendGrid notifier
func NewEmail(apiKey, from, to string) *Email {
	client := sendgrid.NewSendClient(apiKey)
	return &Email{
		from: mail.NewEmail("Draft Analytics", from),
		to:   mail.NewEmail("", to),
		send: func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

// WithSender replaces the delivery function
func (e *Email) WithSender(send SendFunc) *Email {
	e.send = send
	return e
}

func (e *Email) AggregationFailed(ctx context.Context, mode string, err error) error {
	Log{}.AggregationFailed(ctx, mode, err)
	return e.deliver(ctx, aggregationFailedMessage(mode, err))
}

func (e *Email) IndexRequested(ctx context.Context, req models.IndexRequest) error {
	Log{}.IndexRequested(ctx, req)
	return e.deliver(ctx, indexRequestedMessage(req))
}

func (e *Email) deliver(ctx context.Context, m Message) error {
	message := mail.NewSingleEmail(e.from, m.Subject, e.to, m.Text, m.HTML)

	status, body, err := e.send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid error: %d - %s", status, body)
	}

	log.Debug().Str("subject", m.Subject).Msg("Alert email sent")
	return nil
}

func aggregationFailedMessage(mode string, err error) Message {
	subject := fmt.Sprintf("[Draft Analytics] %s aggregation failed", mode)
	text := fmt.Sprintf("The %s analytics aggregation failed:\n\n%v", mode, err)
	body := fmt.Sprintf("<h2>Aggregation failed</h2><p>Mode: %s</p><pre>%s</pre>",
		html.EscapeString(mode), html.EscapeString(err.Error()))
	return Message{Subject: subject, Text: text, HTML: body}
}

func indexRequestedMessage(req models.IndexRequest) Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A query needs a composite index.\n\nCreate it: %s\nQuery: %s\n", req.IndexURL, req.QueryDetails)
	if req.Screen != "" {
		fmt.Fprintf(&sb, "Screen: %s\n", req.Screen)
	}

	body := fmt.Sprintf(
		"<h2>Composite index requested</h2><p><a href=\"%s\">Create index</a></p><p>Query: %s</p><p>Screen: %s</p>",
		html.EscapeString(req.IndexURL), html.EscapeString(req.QueryDetails), html.EscapeString(req.Screen),
	)
	return Message{
		Subject: "[Draft Analytics] Composite index requested",
		Text:    sb.String(),
		HTML:    body,
	}
}
