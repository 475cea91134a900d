// Package credentials computes time-bounded validity windows for generated
// access tokens.
package credentials

import (
	"fmt"
	"time"
)

// SkewTolerance is how far the window start is backdated to tolerate clock
// drift between the engine and the remote system.
const SkewTolerance = 5 * time.Minute

// TimeFormat is the calendar format shared-access APIs expect for window
// bounds (UTC, second precision).
const TimeFormat = "2006-01-02T15:04:05Z"

// Window is a (start, expiry) validity pair. Immutable once computed and
// safe to share across concurrent appliers.
type Window struct {
	Start  time.Time
	Expiry time.Time
}

// NewWindow computes a window anchored at now. The start is backdated by
// SkewTolerance; the expiry is exactly now + validity. Pure function:
// callers pick the anchor, typically the consuming resource's apply instant.
func NewWindow(now time.Time, validity time.Duration) (Window, error) {
	if validity <= 0 {
		return Window{}, fmt.Errorf("validity duration must be positive, got %s", validity)
	}
	now = now.UTC()
	return Window{
		Start:  now.Add(-SkewTolerance),
		Expiry: now.Add(validity),
	}, nil
}

// Validity returns the configured duration, excluding the skew backdating.
func (w Window) Validity() time.Duration {
	return w.Expiry.Sub(w.Start) - SkewTolerance
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.Expiry)
}

// FormatStart renders the start bound in the remote API's calendar format.
func (w Window) FormatStart() string {
	return w.Start.UTC().Format(TimeFormat)
}

// FormatExpiry renders the expiry bound in the remote API's calendar format.
func (w Window) FormatExpiry() string {
	return w.Expiry.UTC().Format(TimeFormat)
}

// QueryString renders the window as signed-window query parameters, the
// form consumed by templated access URLs.
func (w Window) QueryString() string {
	return fmt.Sprintf("st=%s&se=%s", w.FormatStart(), w.FormatExpiry())
}
