// Package webhook forwards audit events to external alerting targets.
// Flavours form a closed set: adding one means adding a constructor to the
// registry, not loading code at runtime.
package webhook

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cmllr/CameraObscura/internal/eventlog"
)

// Sink delivers one audit entry to an external target.
type Sink interface {
	Deliver(entry eventlog.Entry) error
}

// Config carries everything a flavour constructor may need.
type Config struct {
	Target string
	Sensor string
	Debug  bool
	Client *http.Client
	Cache  EnrichmentCache
}

type factory func(cfg Config) (Sink, error)

var flavours = map[string]factory{
	"discord": newDiscord,
}

// New builds the sink for a flavour name. Unknown flavours are a deployment
// error.
func New(flavour string, cfg Config) (Sink, error) {
	build, ok := flavours[strings.ToLower(strings.TrimSpace(flavour))]
	if !ok {
		return nil, fmt.Errorf("unknown webhook flavour %q", flavour)
	}
	return build(cfg)
}

// Dispatcher adapts a Sink to the event log. Delivery is best effort:
// failures are reported to diagnostics and never propagate into the request
// path. Event IDs on the exclude list are never forwarded.
type Dispatcher struct {
	sink    Sink
	exclude map[string]struct{}
	diag    *slog.Logger
}

// NewDispatcher wraps sink with an exclude list given as comma-separated
// event IDs.
func NewDispatcher(sink Sink, excludeCSV string, diag *slog.Logger) *Dispatcher {
	if diag == nil {
		diag = slog.Default()
	}
	exclude := make(map[string]struct{})
	for _, id := range strings.Split(excludeCSV, ",") {
		if id = strings.TrimSpace(id); id != "" {
			exclude[id] = struct{}{}
		}
	}
	return &Dispatcher{sink: sink, exclude: exclude, diag: diag}
}

// Write implements eventlog.Sink.
func (d *Dispatcher) Write(entry eventlog.Entry) error {
	if _, skip := d.exclude[entry.EventID]; skip {
		return nil
	}
	if err := d.sink.Deliver(entry); err != nil {
		d.diag.Debug("webhook delivery failed", "event", entry.EventID, "error", err)
	}
	return nil
}
