// Package metrics names the console's metrics and their tags.
package metrics

import (
	"time"

	obserrors "github.com/target/opsconsole/internal/observability/errors"
	"github.com/target/opsconsole/internal/observability/statsd"
)

// Outcome tag values.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCanceled  = "canceled"
	OutcomeExhausted = "exhausted"
)

// Directory mutation operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpRemove = "remove"
)

// Console records console-level metrics. The zero value and a nil *Console drop everything.
type Console struct {
	sink statsd.Sink
}

// NewConsole wraps sink; a nil sink discards.
func NewConsole(sink statsd.Sink) *Console {
	if sink == nil {
		sink = statsd.Noop{}
	}
	return &Console{sink: sink}
}

// LoginAttempt counts a login by method ("credentials" or "biometric").
func (c *Console) LoginAttempt(method string, err error) {
	tags := outcomeTags(err)
	tags["method"] = method
	c.count("login.attempt", tags)
}

// CaptureRetry counts a scheduled capture retry.
func (c *Console) CaptureRetry(cause error) {
	tags := map[string]string{}
	if class := obserrors.Classify(cause); class != "" {
		tags["error_class"] = class
	}
	c.count("capture.retry", tags)
}

// CaptureOutcome counts how a capture session ended and how long it ran.
func (c *Console) CaptureOutcome(outcome string, elapsed time.Duration) {
	tags := map[string]string{"outcome": outcome}
	c.count("capture.outcome", tags)
	if c != nil && c.sink != nil && elapsed > 0 {
		c.sink.Timing("capture.duration", elapsed, map[string]string{"outcome": outcome})
	}
}

// DirectoryLoad counts a directory fetch and times it.
func (c *Console) DirectoryLoad(elapsed time.Duration, err error) {
	tags := outcomeTags(err)
	c.count("directory.load", tags)
	if c != nil && c.sink != nil && elapsed > 0 {
		c.sink.Timing("directory.load.duration", elapsed, outcomeTags(err))
	}
}

// DirectoryMutation counts a create, update or remove.
func (c *Console) DirectoryMutation(op string, err error) {
	tags := outcomeTags(err)
	tags["op"] = op
	c.count("directory.mutation", tags)
}

func (c *Console) count(name string, tags map[string]string) {
	if c == nil || c.sink == nil {
		return
	}
	c.sink.Count(name, 1, tags)
}

func outcomeTags(err error) map[string]string {
	if err == nil {
		return map[string]string{"outcome": OutcomeSuccess}
	}
	return map[string]string{"outcome": OutcomeError, "error_class": obserrors.Classify(err)}
}
