package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ktrade/sentinel/internal/metrics"
)

// Default transport and fallback settings.
const (
	DefaultTimeout     = 10 * time.Second
	fallbackMaxSizeMB  = 10
	fallbackMaxBackups = 3
	fallbackMaxAgeDays = 90
)

// Config describes the dispatcher's delivery targets. WebhookURL may be
// empty, in which case the dispatcher fails closed to the fallback log.
type Config struct {
	WebhookURL   string
	Timeout      time.Duration
	FallbackPath string
}

// Dispatcher delivers alerts: one webhook attempt, then one fallback line.
// Send never returns an error to the caller; alerting must not take the
// watchdog down with it.
type Dispatcher struct {
	cfg      Config
	client   *resty.Client
	fallback *lj.Logger
	logger   *slog.Logger
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{cfg: cfg, logger: logger}
	d.client = resty.New().SetTimeout(cfg.Timeout)
	if cfg.FallbackPath != "" {
		d.fallback = &lj.Logger{
			Filename:   cfg.FallbackPath,
			MaxSize:    fallbackMaxSizeMB,
			MaxBackups: fallbackMaxBackups,
			MaxAge:     fallbackMaxAgeDays,
		}
	}
	return d
}

// Send delivers msg. Primary path: a single POST to the webhook with a
// bounded timeout, success signaled by a 2xx response. Any transport error,
// non-2xx status, or missing endpoint configuration degrades to exactly one
// appended line in the durable fallback log.
func (d *Dispatcher) Send(ctx context.Context, msg Message) {
	metrics.IncAlert(string(msg.Severity))
	if d.cfg.WebhookURL == "" {
		d.logger.Warn("no webhook configured, writing alert to fallback log",
			"subject", msg.Subject)
		d.writeFallback(msg)
		return
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(d.cfg.WebhookURL)
	if err != nil {
		d.logger.Warn("alert webhook failed", "subject", msg.Subject, "error", err)
		d.writeFallback(msg)
		return
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		d.logger.Warn("alert webhook rejected", "subject", msg.Subject,
			"status", resp.StatusCode())
		d.writeFallback(msg)
		return
	}
	d.logger.Info("alert delivered", "subject", msg.Subject, "severity", msg.Severity)
}

func (d *Dispatcher) writeFallback(msg Message) {
	if d.fallback == nil {
		return
	}
	line := fmt.Sprintf("%s [%s] %s | %s (host=%s)\n",
		msg.Time.UTC().Format(time.RFC3339), msg.Severity, msg.Subject, msg.Body, msg.Host)
	if _, err := d.fallback.Write([]byte(line)); err != nil {
		d.logger.Error("alert fallback write failed", "error", err)
	}
}
