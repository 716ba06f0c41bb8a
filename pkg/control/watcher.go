package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/redis/go-redis/v9"

	"chairgate/pkg/engine"
)

// Manifest is the runtime configuration stored in Redis.
type Manifest struct {
	Version string         `json:"version"`
	Forward *ForwardTarget `json:"forward,omitempty"`
	Filters []FilterRule   `json:"filters"`
}

type ForwardTarget struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type FilterRule struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
}

// Client is the subset of *redis.Client the watcher uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// TargetSetter receives forward endpoint updates.
type TargetSetter interface {
	SetTarget(url string, headers map[string]string)
}

type WatcherConfig struct {
	ConfigKey     string
	UpdateChannel string
	Gate          *engine.Gate
	// Forwarder may be nil when the datagram path is disabled.
	Forwarder TargetSetter
	Logger    *log.Logger
}

// Watcher applies manifests from Redis: once at start and again every time
// a message arrives on the update channel.
type Watcher struct {
	client Client
	cfg    WatcherConfig
	logger *log.Logger
}

func NewWatcher(client Client, cfg WatcherConfig) *Watcher {
	w := &Watcher{client: client, cfg: cfg, logger: cfg.Logger}
	if w.logger == nil {
		w.logger = log.Default()
	}
	return w
}

// Run loads the current manifest and follows updates until ctx is cancelled.
// Redis being unreachable is logged, not fatal.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Println("control: starting config watcher")

	w.reload(ctx)

	pubsub := w.client.Subscribe(ctx, w.cfg.UpdateChannel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			w.logger.Printf("control: received update signal: %s", msg.Payload)
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	val, err := w.client.Get(ctx, w.cfg.ConfigKey).Result()
	if errors.Is(err, redis.Nil) {
		w.logger.Println("control: no config found in Redis, keeping current state")
		return
	} else if err != nil {
		w.logger.Printf("control: failed to fetch config: %v", err)
		return
	}

	if err := w.Apply([]byte(val)); err != nil {
		w.logger.Printf("control: %v", err)
	}
}

// Apply installs a manifest. Invalid JSON leaves everything untouched; an
// invalid filter rule is skipped; an invalid forward URL keeps the old one.
func (w *Watcher) Apply(data []byte) error {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("invalid config JSON: %w", err)
	}

	var processors []engine.Processor
	for _, rule := range manifest.Filters {
		switch rule.Type {
		case "field_filter":
			proc, err := engine.NewFieldFilterProcessor(engine.FieldFilterConfig{
				Name:     rule.ID,
				Path:     rule.Params["path"],
				Operator: engine.Operator(rule.Params["operator"]),
				Value:    rule.Params["value"],
			})
			if err != nil {
				w.logger.Printf("control: failed to create field_filter %s: %v", rule.ID, err)
				continue
			}
			processors = append(processors, proc)
		default:
			w.logger.Printf("control: unknown filter type %q for %s", rule.Type, rule.ID)
		}
	}
	if w.cfg.Gate != nil {
		w.cfg.Gate.UpdateChain(engine.NewProcessorChain(processors...))
	}

	if manifest.Forward != nil && w.cfg.Forwarder != nil {
		u, err := url.Parse(manifest.Forward.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			w.logger.Printf("control: ignoring invalid forward url %q", manifest.Forward.URL)
		} else {
			w.cfg.Forwarder.SetTarget(manifest.Forward.URL, manifest.Forward.Headers)
			w.logger.Printf("control: forwarding to %s", manifest.Forward.URL)
		}
	}

	w.logger.Printf("control: applied config version %q", manifest.Version)
	return nil
}
