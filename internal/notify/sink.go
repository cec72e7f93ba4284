package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/cartoworks/geomon/internal/store"
)

// Message is the rendered context handed to a sink.
type Message struct {
	CheckName   string      `json:"check_name"`
	CheckURL    string      `json:"check_url,omitempty"`
	Description string      `json:"description,omitempty"`
	At          time.Time   `json:"-"`
	Violations  []Violation `json:"violations"`
}

// Subject renders a one-line summary.
func (m Message) Subject(severity Severity) string {
	return fmt.Sprintf("[%s] %s: %d threshold violation(s)", strings.ToUpper(string(severity)), m.CheckName, len(m.Violations))
}

// Body renders a plain-text report, one line per violation.
func (m Message) Body() string {
	var b strings.Builder
	if m.Description != "" {
		b.WriteString(m.Description)
		b.WriteString("\n\n")
	}
	for _, v := range m.Violations {
		fmt.Fprintf(&b, "- %s\n  bucket %s to %s\n",
			v.Description,
			store.FormatTimestamp(v.ValidFrom),
			store.FormatTimestamp(v.ValidTo))
	}
	if m.CheckURL != "" {
		fmt.Fprintf(&b, "\nCheck: %s\n", m.CheckURL)
	}
	return b.String()
}

// Sink delivers a violation report to a set of recipients. Implementations
// either succeed or return an error; the evaluator does not retry.
type Sink interface {
	Send(ctx context.Context, recipients []string, severity Severity, msg Message) error
}

// Dial seams so tests can run the SMTP conversation against a pipe.
var (
	smtpDialTimeout = net.DialTimeout
	smtpNewClient   = smtp.NewClient
)

// EmailSink delivers reports over SMTP, one message per dispatch with all
// recipients on it.
type EmailSink struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	StartTLS bool
	Timeout  time.Duration
}

func (s *EmailSink) Send(ctx context.Context, recipients []string, severity Severity, msg Message) error {
	if len(recipients) == 0 {
		return nil
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	conn, err := smtpDialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtpNewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake with %s failed: %w", s.Host, err)
	}
	defer client.Close()

	if s.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server %s does not support STARTTLS", s.Host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fmt.Errorf("STARTTLS with %s failed: %w", s.Host, err)
		}
	}
	if s.Username != "" {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(s.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := fmt.Fprintf(w, "From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.From, strings.Join(recipients, ", "), msg.Subject(severity), msg.Body()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message body rejected: %w", err)
	}
	return client.Quit()
}

// webhookPayload is the wire shape of a webhook dispatch. Bucket timestamps
// use the fixed external format.
type webhookPayload struct {
	Check      string             `json:"check"`
	CheckURL   string             `json:"check_url,omitempty"`
	Severity   Severity           `json:"severity"`
	At         string             `json:"at"`
	Recipients []string           `json:"recipients,omitempty"`
	Violations []webhookViolation `json:"violations"`
}

type webhookViolation struct {
	ID          string `json:"id"`
	Metric      string `json:"metric"`
	Service     string `json:"service"`
	Label       string `json:"label,omitempty"`
	Value       string `json:"value"`
	Threshold   string `json:"threshold"`
	Bound       string `json:"bound"`
	Description string `json:"description"`
	ValidFrom   string `json:"valid_from"`
	ValidTo     string `json:"valid_to"`
}

// WebhookSink POSTs the report as JSON to a fixed URL.
type WebhookSink struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

func (s *WebhookSink) Send(ctx context.Context, recipients []string, severity Severity, msg Message) error {
	payload := webhookPayload{
		Check:      msg.CheckName,
		CheckURL:   msg.CheckURL,
		Severity:   severity,
		At:         store.FormatTimestamp(msg.At),
		Recipients: recipients,
	}
	for _, v := range msg.Violations {
		payload.Violations = append(payload.Violations, webhookViolation{
			ID:          v.ID,
			Metric:      v.Metric,
			Service:     v.Service,
			Label:       v.Label,
			Value:       v.Value.String(),
			Threshold:   v.Threshold.String(),
			Bound:       v.Bound,
			Description: v.Description,
			ValidFrom:   store.FormatTimestamp(v.ValidFrom),
			ValidTo:     store.FormatTimestamp(v.ValidTo),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	for key, value := range s.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiSink fans a dispatch out to every sink, collecting all errors.
type MultiSink []Sink

func (s MultiSink) Send(ctx context.Context, recipients []string, severity Severity, msg Message) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Send(ctx, recipients, severity, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
