package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister adds every queued collector to the default registry. Later calls
// are no-ops.
func MustRegister() {
	once.Do(func() { MustRegisterWith(prometheus.DefaultRegisterer) })
}

// MustRegisterWith adds every queued collector to reg. It panics on duplicates,
// so each registry takes the set once.
func MustRegisterWith(reg prometheus.Registerer) {
	if len(collectors) == 0 {
		return
	}
	reg.MustRegister(collectors...)
}
