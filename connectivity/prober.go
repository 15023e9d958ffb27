package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober polls a URL and feeds the result into a Monitor.
// Any HTTP response counts as online; only transport failures count as offline.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	monitor  *Monitor
	log      zerolog.Logger
}

type ProberOption func(*Prober)

// WithInterval sets the time between probes.
func WithInterval(interval time.Duration) ProberOption {
	return func(p *Prober) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithHTTPClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		p.client = client
	}
}

func WithLogger(logger zerolog.Logger) ProberOption {
	return func(p *Prober) {
		p.log = logger
	}
}

// NewProber creates a prober that reports reachability of url to monitor.
func NewProber(url string, monitor *Monitor, options ...ProberOption) *Prober {
	p := &Prober{
		url:      url,
		interval: DefaultProbeInterval,
		client:   &http.Client{Timeout: DefaultProbeTimeout},
		monitor:  monitor,
		log:      log.With().Str("component", "connectivity").Logger(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Probe checks the URL once, updates the monitor and returns the result.
func (p *Prober) Probe(ctx context.Context) bool {
	online := p.reachable(ctx)
	if ctx.Err() != nil {
		return p.monitor.Online()
	}
	if p.monitor.Set(online) {
		p.log.Info().Bool("online", online).Str("url", p.url).Msg("connectivity changed")
	}
	return online
}

func (p *Prober) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.log.Error().Err(err).Str("url", p.url).Msg("invalid probe url")
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Msg("probe failed")
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return true
}

// Run probes immediately and then at every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
