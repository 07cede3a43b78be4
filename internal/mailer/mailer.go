// Package mailer is the outbound SMTP transport. Sends are synchronous and
// rate limited; with DryRun set messages are logged instead of delivered.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	logx "querybell/pkg/logx"
)

var ErrDisabled = errors.New("mail transport disabled")

type Config struct {
	Enabled    bool
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	RatePerSec int
	Timeout    time.Duration
	DryRun     bool
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	client  *mail.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps the SMTP client and rate limiter at runtime.
func (s *Service) Apply(cfg Config) error {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	var client *mail.Client
	if cfg.Enabled && !cfg.DryRun {
		if strings.TrimSpace(cfg.Host) == "" {
			return errors.New("mail.host is required")
		}
		opts := []mail.Option{
			mail.WithTimeout(cfg.Timeout),
		}
		if cfg.Port > 0 {
			opts = append(opts, mail.WithPort(cfg.Port))
		}
		if cfg.Username != "" {
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(cfg.Password),
			)
		}
		c, err := mail.NewClient(cfg.Host, opts...)
		if err != nil {
			return fmt.Errorf("mail client: %w", err)
		}
		client = c
	}

	s.mu.Lock()
	s.cfg = cfg
	s.client = client
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
	return nil
}

// Send delivers one message. The "From" header, when present, overrides the
// configured sender (external templates may declare their own).
func (s *Service) Send(ctx context.Context, to, subject, body string, headers map[string]string) error {
	s.mu.Lock()
	cfg := s.cfg
	client := s.client
	lim := s.limiter
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("empty recipient")
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	from := cfg.From
	if h := headers["From"]; h != "" {
		from = h
	}

	if cfg.DryRun || client == nil {
		s.log.Info("mail dry-run",
			logx.String("to", to),
			logx.String("from", from),
			logx.String("subject", subject),
			logx.Int("body_len", len(body)),
		)
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", from, err)
	}
	addrs := strings.Split(to, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	if err := m.To(addrs...); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Debug("mail sent", logx.String("to", to), logx.String("subject", subject))
	return nil
}
