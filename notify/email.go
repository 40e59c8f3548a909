package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig configures an SMTP email channel.
type EmailConfig struct {
	// Name identifies the channel in logs; defaults to "email".
	Name string
	// Host and Port locate the SMTP server.
	Host string
	Port int
	// Username/Password enable PLAIN auth when set.
	Username string
	Password string
	// From is the envelope and header sender.
	From string
	// To lists the recipients.
	To []string
	// Kinds filters events; empty accepts everything.
	Kinds []Kind
}

// EmailChannel delivers notifications over SMTP.
type EmailChannel struct {
	name  string
	cfg   EmailConfig
	kinds kindSet

	// send is swappable for tests; defaults to sendSMTP.
	send func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an EmailChannel.
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("notify: email: host, from, and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	name := cfg.Name
	if name == "" {
		name = "email"
	}
	return &EmailChannel{
		name:  name,
		cfg:   cfg,
		kinds: newKindSet(cfg.Kinds),
		send:  sendSMTP,
	}, nil
}

func (c *EmailChannel) Name() string { return c.name }

func (c *EmailChannel) Accepts(kind Kind) bool { return c.kinds.accepts(kind) }

func (c *EmailChannel) Render(ev Event) (Message, error) {
	return renderText(ev), nil
}

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	if err := c.send(ctx, addr, auth, c.cfg.From, c.cfg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp %s: %w", addr, err)
	}
	return nil
}

// sendSMTP is smtp.SendMail with a context hook: the dial honours ctx, the
// connection carries the ctx deadline, and cancellation closes the
// connection so a stalled server cannot pin a delivery attempt.
func sendSMTP(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	unwatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer unwatch()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	cl, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer cl.Close()

	if ok, _ := cl.Extension("STARTTLS"); ok {
		if err := cl.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if err := cl.Auth(a); err != nil {
			return err
		}
	}
	if err := cl.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := cl.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := cl.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return cl.Quit()
}
