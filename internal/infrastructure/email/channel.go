package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

const defaultSubject = "Дайджест новостей"

// Channel delivers digests through an SMTP relay.
type Channel struct {
	cfg     config.EmailConfig
	subject string
	now     func() time.Time
}

var _ ports.Channel = (*Channel)(nil)

// NewChannel builds an SMTP channel; missing port defaults to 587.
func NewChannel(cfg config.EmailConfig) *Channel {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Channel{cfg: cfg, subject: defaultSubject, now: time.Now}
}

// Name identifies the channel in logs.
func (c *Channel) Name() string {
	return "email"
}

// Configured reports whether the relay, the sender and at least one recipient are set.
func (c *Channel) Configured() bool {
	return c.cfg.Host != "" && c.cfg.From != "" && len(c.cfg.To) > 0
}

// MaxMessageLength is 0: email bodies are not split.
func (c *Channel) MaxMessageLength() int {
	return 0
}

// Send dials the relay and delivers one plain-text message to every recipient.
func (c *Channel) Send(ctx context.Context, message string) error {
	if !c.Configured() {
		return errors.New("email channel misconfigured")
	}

	msg, err := c.buildMessage(message)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(c.cfg.Host, c.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (c *Channel) buildMessage(body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(c.cfg.To...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s %s", c.subject, c.now().Format("02.01.2006")))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (c *Channel) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithTLSPortPolicy(tlsPolicy(c.cfg.TLSPolicy)),
		mail.WithPort(c.cfg.Port),
	}
	if c.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.Username),
			mail.WithPassword(c.cfg.Password),
		)
	}
	return opts
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch name {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
