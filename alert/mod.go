package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// Severity ranks an outbound notification.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityAction   Severity = "ACTION"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// MinInterval is the default floor between two outbound notifications.
const MinInterval = 10 * time.Second

// Sink delivers one notification to the outside world (chat webhook, pager,
// stdout). Implementations may fail; the Alerter never propagates that.
type Sink interface {
	Send(severity Severity, message string) error
}

// LogSink writes notifications to the structured log.
type LogSink struct{}

// Send implements alert.Sink.
func (LogSink) Send(severity Severity, message string) error {
	log.Info().Msgf("[%s] %s", severity, message)
	return nil
}

// Alerter rate-limits and delivers notifications. Safe to invoke
// concurrently from the scheduler loop and the event consumer.
type Alerter struct {
	mu          sync.Mutex
	sink        Sink
	minInterval time.Duration
	lastSent    time.Time
	suppressed  uint64
	delivered   uint64

	// now is swappable for tests.
	now func() time.Time
}

// NewAlerter creates an alerter in front of the given sink. A zero
// minInterval falls back to MinInterval.
func NewAlerter(sink Sink, minInterval time.Duration) *Alerter {
	if minInterval <= 0 {
		minInterval = MinInterval
	}
	return &Alerter{
		sink:        sink,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Alert formats and delivers one notification. Calls arriving within the
// minimum interval of the previous delivery are dropped after being logged.
// Sink failures are logged, never returned.
func (a *Alerter) Alert(severity Severity, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	a.mu.Lock()
	now := a.now()
	if !a.lastSent.IsZero() && now.Sub(a.lastSent) < a.minInterval {
		a.suppressed++
		a.mu.Unlock()
		log.Info().Msgf("alert suppressed by rate limit: [%s] %s", severity, message)
		return
	}
	// a failed attempt still consumes the rate-limit slot
	a.lastSent = now
	sink := a.sink
	a.mu.Unlock()

	id := xid.New()
	if err := sink.Send(severity, message); err != nil {
		log.Error().Msgf("alert %s delivery failed: %v", id, err)
		return
	}

	a.mu.Lock()
	a.delivered++
	a.mu.Unlock()
	log.Debug().Msgf("alert %s delivered: [%s] %s", id, severity, message)
}

// Stats reports delivered and suppressed counts.
func (a *Alerter) Stats() (delivered, suppressed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delivered, a.suppressed
}
