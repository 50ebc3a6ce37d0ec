package action

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// Sleep delays the rest of the pipeline for the configured duration,
// blocking only the goroutine handling this request. With randomize set the
// delay becomes duration + duration/d for a fresh d drawn from 1..10, so it
// falls uniformly in [1x, 2x) of the base duration.
type Sleep struct {
	sleep func(time.Duration)
	intn  func(int) int
}

// NewSleep builds the production sleep action.
func NewSleep() *Sleep {
	return &Sleep{sleep: time.Sleep, intn: rand.Intn}
}

// Run implements Action.
func (a *Sleep) Run(ctx *Context) (Result, error) {
	cfg := ctx.Route.ActionConfig("sleep")
	if cfg == nil || cfg["duration"] == nil {
		return Continue, fmt.Errorf("sleep requires a duration")
	}
	seconds, err := asSeconds(cfg["duration"])
	if err != nil {
		return Continue, fmt.Errorf("sleep duration: %w", err)
	}
	if truthy(cfg["randomize"]) {
		divisor := a.intn(10) + 1
		seconds += seconds / float64(divisor)
	}
	a.sleep(time.Duration(seconds * float64(time.Second)))
	return Continue, nil
}

func asSeconds(value any) (float64, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case string:
		return strconv.ParseFloat(typed, 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}
