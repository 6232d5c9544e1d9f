package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	jwemail "github.com/jordan-wright/email"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// Timeout bounds one whole SMTP conversation. Zero means DefaultTimeout.
	Timeout  time.Duration
}

const DefaultTimeout = 30 * time.Second

type SMTPProvider struct {
	cfg  Config
	send func(ctx context.Context, e *jwemail.Email, addr string, auth smtp.Auth) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &SMTPProvider{cfg: cfg}
	p.send = p.deliver
	return p
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := p.build(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	return p.send(ctx, e, addr, auth)
}

// deliver runs the SMTP conversation that smtp.SendMail would, on a
// connection bounded by ctx and the configured timeout.
func (p *SMTPProvider) deliver(ctx context.Context, e *jwemail.Email, addr string, auth smtp.Auth) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("smtp %s: %w", addr, ctx.Err())
		}
	}()

	raw, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("render message: %w", err)
	}
	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return fmt.Errorf("parse sender: %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	// Closing the connection unblocks whichever read or write is pending.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	for _, rcpt := range append(append(append([]string{}, e.To...), e.Cc...), e.Bcc...) {
		to, err := mail.ParseAddress(rcpt)
		if err != nil {
			return fmt.Errorf("parse recipient: %w", err)
		}
		if err := client.Rcpt(to.Address); err != nil {
			return fmt.Errorf("smtp RCPT: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	return client.Quit()
}

func (p *SMTPProvider) SendTemplate(ctx context.Context, msg Message, templateName string, data any) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	msg.HTML = body.String()
	return p.Send(ctx, msg)
}

func (p *SMTPProvider) build(msg Message) (*jwemail.Email, error) {
	e := jwemail.NewEmail()
	e.From = p.cfg.From
	if name := strings.TrimSpace(p.cfg.FromName); name != "" {
		e.From = fmt.Sprintf("%s <%s>", name, p.cfg.From)
	}
	e.To = msg.To
	e.Subject = msg.Subject
	e.Headers = textproto.MIMEHeader{}
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	for _, a := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Filename, a.ContentType); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return e, nil
}
