// Package emitter generates random chair records and sends them to a
// chairgate listener at a fixed pace. It stands in for the field devices
// during local testing.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"chairgate/pkg/codec"
	"chairgate/pkg/model"
)

const DefaultInterval = 5 * time.Second

type Config struct {
	// Transport is "tcp" or "udp".
	Transport string
	Target    string
	Interval  time.Duration
	// Count stops the emitter after that many records; 0 runs until cancelled.
	Count int
	// NameField is the JSON key used for the record name.
	NameField string
	// Newline terminates each record with '\n' for newline-framed servers.
	Newline bool
	Rand    *rand.Rand
	Logger  *log.Logger
}

type Emitter struct {
	cfg     Config
	codec   codec.Codec
	limiter *rate.Limiter
	logger  *log.Logger
	sent    atomic.Int64
}

func New(cfg Config) (*Emitter, error) {
	switch cfg.Transport {
	case "tcp", "udp":
	case "":
		cfg.Transport = "udp"
	default:
		return nil, fmt.Errorf("emitter: unsupported transport %q", cfg.Transport)
	}
	if cfg.Target == "" {
		return nil, errors.New("emitter: target address is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Emitter{
		cfg:     cfg,
		codec:   codec.New(cfg.NameField),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		logger:  cfg.Logger,
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	return e, nil
}

// Sent returns the number of records written so far.
func (e *Emitter) Sent() int64 {
	return e.sent.Load()
}

// Run dials the target once and sends a record per interval. The first
// record goes out immediately. It returns nil when ctx is cancelled or Count
// records have been sent.
func (e *Emitter) Run(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, e.cfg.Transport, e.cfg.Target)
	if err != nil {
		return fmt.Errorf("emitter: dial %s %s: %w", e.cfg.Transport, e.cfg.Target, err)
	}
	defer conn.Close()
	e.logger.Printf("emitter: sending to %s://%s every %s", e.cfg.Transport, e.cfg.Target, e.cfg.Interval)

	for e.cfg.Count == 0 || e.sent.Load() < int64(e.cfg.Count) {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		rec := model.NewRandomRecord(e.cfg.Rand)
		payload, err := e.codec.Encode(rec)
		if err != nil {
			return fmt.Errorf("emitter: encode: %w", err)
		}
		if e.cfg.Newline {
			payload = append(payload, '\n')
		}

		if _, err := conn.Write(payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A UDP write fails when the previous datagram drew an ICMP
			// unreachable; the next one may still land.
			if e.cfg.Transport == "udp" {
				e.logger.Printf("emitter: send failed: %v", err)
				continue
			}
			return fmt.Errorf("emitter: send: %w", err)
		}
		e.sent.Add(1)
		e.logger.Printf("emitter: sent %s", payload)
	}
	return nil
}
