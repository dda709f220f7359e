package netcode

import (
	"fmt"

	metrics "github.com/rcrowley/go-metrics"
)

var statNames = []string{
	"MessagesSent",
	"MessagesReceived",
	"MessagesDropped",
	"BytesSent",
	"BytesReceived",
	"BytesDropped",
}

// Traffic counters for a channel or connection.  Counters are registered
// with the default metrics registry under a per-owner prefix and are
// removed when the owner is disposed.
type Stats struct {
	registry metrics.Registry

	MessagesSent     metrics.Counter
	MessagesReceived metrics.Counter
	MessagesDropped  metrics.Counter

	BytesSent     metrics.Counter
	BytesReceived metrics.Counter
	BytesDropped  metrics.Counter
}

func newStats(format string, vals ...interface{}) *Stats {
	r := metrics.NewPrefixedChildRegistry(metrics.DefaultRegistry, fmt.Sprintf(format, vals...)+".")
	return &Stats{
		registry:         r,
		MessagesSent:     metrics.NewRegisteredCounter("MessagesSent", r),
		MessagesReceived: metrics.NewRegisteredCounter("MessagesReceived", r),
		MessagesDropped:  metrics.NewRegisteredCounter("MessagesDropped", r),
		BytesSent:        metrics.NewRegisteredCounter("BytesSent", r),
		BytesReceived:    metrics.NewRegisteredCounter("BytesReceived", r),
		BytesDropped:     metrics.NewRegisteredCounter("BytesDropped", r),
	}
}

func (s *Stats) sent(n int) {
	s.MessagesSent.Inc(1)
	s.BytesSent.Inc(int64(n))
}

func (s *Stats) received(n int) {
	s.MessagesReceived.Inc(1)
	s.BytesReceived.Inc(int64(n))
}

func (s *Stats) dropped(n int) {
	s.MessagesDropped.Inc(1)
	s.BytesDropped.Inc(int64(n))
}

func (s *Stats) unregister() {
	for _, name := range statNames {
		s.registry.Unregister(name)
	}
}
