package logger

import (
	"sync"
	"time"
)

// componentCounters tracks warn/error volume per component so that a
// periodic health report can summarise how the run is going.
type componentCounters struct {
	mu     sync.Mutex
	warns  map[string]int64
	errors map[string]int64
}

var counters = &componentCounters{
	warns:  make(map[string]int64),
	errors: make(map[string]int64),
}

func recordWarn(component string) {
	counters.mu.Lock()
	counters.warns[component]++
	counters.mu.Unlock()
}

func recordError(component string) {
	counters.mu.Lock()
	counters.errors[component]++
	counters.mu.Unlock()
}

// Snapshot returns copies of the warn and error counters.
func Snapshot() (warns map[string]int64, errors map[string]int64) {
	counters.mu.Lock()
	defer counters.mu.Unlock()
	warns = make(map[string]int64, len(counters.warns))
	errors = make(map[string]int64, len(counters.errors))
	for k, v := range counters.warns {
		warns[k] = v
	}
	for k, v := range counters.errors {
		errors[k] = v
	}
	return warns, errors
}

// StartReporter logs a health summary at the given interval until the
// returned stop function is called.
func StartReporter(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				warns, errs := Snapshot()
				var warnTotal, errTotal int64
				for _, v := range warns {
					warnTotal += v
				}
				for _, v := range errs {
					errTotal += v
				}
				globalLogger.WithComponent("health").WithFields(Fields{
					"warn_total":  warnTotal,
					"error_total": errTotal,
					"components":  len(warns) + len(errs),
				}).Info("periodic health report")
			}
		}
	}()
	return func() { close(done) }
}
