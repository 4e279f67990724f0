package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

type EmailConfig struct {
	Enabled            bool    `yaml:"enabled"`
	Addresses          string  `yaml:"addresses"`
	Subject            string  `yaml:"message_subject"`
	Content            string  `yaml:"message_content"`
	SMTPServer         string  `yaml:"smtp_server"`
	SMTPPort           int     `yaml:"smtp_port"`
	SMTPUser           string  `yaml:"smtp_user"`
	SMTPPassword       string  `yaml:"smtp_password"`
	Sender             string  `yaml:"smtp_sender_email"`
	RadiationThreshold float64 `yaml:"radiation_threshold"`
	DateFormat         string  `yaml:"date_format"`
	TimeFormat         string  `yaml:"time_format"`
}

func (c *EmailConfig) ApplyDefaults() {
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.DateFormat == "" {
		c.DateFormat = "2006-01-02"
	}
	if c.TimeFormat == "" {
		c.TimeFormat = "15:04:05"
	}
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Email notifies every address when the dose rate reaches the threshold.
// All addresses share one SMTP session bounded by the Update context.
type Email struct {
	lifecycle
	cfg       EmailConfig
	addresses []string
	loc       *time.Location
	dial      dialFunc
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	s := &Email{loc: time.Local, dial: (&net.Dialer{}).DialContext}
	if !cfg.Enabled {
		return s, nil
	}
	cfg.ApplyDefaults()

	var missing []string
	for _, kv := range [][2]string{
		{"addresses", cfg.Addresses},
		{"message_subject", cfg.Subject},
		{"message_content", cfg.Content},
		{"smtp_server", cfg.SMTPServer},
		{"smtp_sender_email", cfg.Sender},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			missing = append(missing, kv[0])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("email: could not load all needed settings: missing %s", strings.Join(missing, ", "))
	}
	if cfg.RadiationThreshold <= 0 {
		return nil, fmt.Errorf("email: radiation_threshold must be > 0")
	}

	for _, a := range strings.Split(cfg.Addresses, ";") {
		if a = strings.TrimSpace(a); a != "" {
			s.addresses = append(s.addresses, a)
		}
	}
	if len(s.addresses) == 0 {
		return nil, fmt.Errorf("email: no valid address in %q", cfg.Addresses)
	}

	s.cfg = cfg
	s.enabled.Store(true)
	return s, nil
}

func (s *Email) Name() string { return "email" }

func (s *Email) Update(ctx context.Context, m domain.Measurement) error {
	if m.Radiation == nil {
		return sinkErr(s.Name(), "this sink needs a radiation value")
	}
	if *m.Radiation < s.cfg.RadiationThreshold {
		return nil
	}

	subject := s.fill(s.cfg.Subject, m)
	content := s.fill(s.cfg.Content, m)
	addr := net.JoinHostPort(s.cfg.SMTPServer, strconv.Itoa(s.cfg.SMTPPort))

	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return sinkErr(s.Name(), "failed to connect to %s: %v", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// unblocks any pending read or write once ctx is done
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := s.send(conn, subject, content); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return sinkErr(s.Name(), "failed to send notification e-mail: %v (%v)", cerr, err)
		}
		return sinkErr(s.Name(), "failed to send notification e-mail: %v", err)
	}
	return nil
}

// send runs one session: greeting, optional STARTTLS and login, then one
// message per address.
func (s *Email) send(conn net.Conn, subject, content string) error {
	c, err := smtp.NewClient(conn, s.cfg.SMTPServer)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.SMTPServer}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.SMTPUser != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPServer)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	for _, to := range s.addresses {
		if err := c.Mail(s.cfg.Sender); err != nil {
			return fmt.Errorf("%s: %w", to, err)
		}
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("%s: %w", to, err)
		}
		w, err := c.Data()
		if err != nil {
			return fmt.Errorf("%s: %w", to, err)
		}
		msg := "To: " + to + "\r\n" +
			"From: " + s.cfg.Sender + "\r\n" +
			"Subject: " + subject + "\r\n\r\n" +
			content
		if _, err := w.Write([]byte(msg)); err != nil {
			return fmt.Errorf("%s: %w", to, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("%s: %w", to, err)
		}
	}
	return c.Quit()
}

func (s *Email) Close() error {
	s.disable()
	return nil
}

// fill expands $date$, $time$, $cpm$, $radiation$, $threshold$ and \n.
func (s *Email) fill(tmpl string, m domain.Measurement) string {
	local := m.Timestamp.In(s.loc)
	r := strings.NewReplacer(
		"$date$", local.Format(s.cfg.DateFormat),
		"$time$", local.Format(s.cfg.TimeFormat),
		"$cpm$", formatValue(m.CPM, "."),
		"$radiation$", formatValue(m.Radiation, "."),
		"$threshold$", strconv.FormatFloat(s.cfg.RadiationThreshold, 'f', -1, 64),
		`\n`, "\n",
	)
	return r.Replace(tmpl)
}

var _ ports.Sink = (*Email)(nil)
