package webhook

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/cmllr/CameraObscura/internal/eventlog"
)

const (
	colorInfo  = 888164
	colorError = 9243963

	ipAPIBase = "http://ip-api.com/json/"
)

// discord posts entries as webhook embeds, enriching them with geo data for
// the source IP.
type discord struct {
	target  string
	sensor  string
	debug   bool
	client  *http.Client
	cache   EnrichmentCache
	lookups singleflight.Group
	// lookupBase is swapped out by tests.
	lookupBase string
}

func newDiscord(cfg Config) (Sink, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("webhook target missing")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &discord{
		target:     cfg.Target,
		sensor:     cfg.Sensor,
		debug:      cfg.Debug,
		client:     client,
		cache:      cache,
		lookupBase: ipAPIBase,
	}, nil
}

type discordEmbed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Deliver implements Sink.
func (d *discord) Deliver(entry eventlog.Entry) error {
	color := colorInfo
	if entry.IsError {
		color = colorError
	}
	payload := discordPayload{
		Username: d.sensor,
		Embeds: []discordEmbed{{
			Title:       entry.EventID,
			Description: entry.Message,
			Color:       color,
			Fields:      d.enrich(entry.SrcIP),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	resp, err := d.client.Post(d.target, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook target returned %d", resp.StatusCode)
	}
	return nil
}

// enrich resolves origin data for the source IP, serving repeats from the
// cache. Concurrent lookups for one IP are collapsed into a single call.
func (d *discord) enrich(srcIP string) []Field {
	if srcIP == "" {
		return nil
	}
	if fields, ok := d.cache.Get(srcIP); ok {
		return fields
	}
	result, _, _ := d.lookups.Do(srcIP, func() (any, error) {
		fields := d.lookup(srcIP)
		d.cache.Set(srcIP, fields)
		return fields, nil
	})
	fields, _ := result.([]Field)
	return fields
}

func (d *discord) lookup(srcIP string) []Field {
	resp, err := d.client.Get(d.lookupBase + srcIP)
	if err != nil {
		return []Field{{Name: "API returned error", Value: fmt.Sprintf("Lookup failed: %v", err)}}
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&decoded) != nil || decoded["status"] == "fail" {
		return []Field{{
			Name:  "API returned error",
			Value: fmt.Sprintf("Something went wrong. Status Code was %d", resp.StatusCode),
		}}
	}

	var fields []Field
	if d.debug {
		fields = append(fields, Field{Name: "IN DEBUG MODE", Value: "THE IP IS RANDOM"})
	}
	for _, pair := range [][2]string{
		{"Country", "country"},
		{"Region", "regionName"},
		{"City", "city"},
		{"Lat", "lat"},
		{"Lon", "lon"},
		{"AS", "as"},
		{"ISP", "isp"},
	} {
		fields = append(fields, Field{Name: pair[0], Value: fmt.Sprintf("%v", decoded[pair[1]])})
	}
	return fields
}
