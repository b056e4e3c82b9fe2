package monitoring

import "time"

// Monitor reports unexpected failures to an error tracker.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything. It is the default until Init is called.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init installs m as the process-wide monitor. A nil m is ignored.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// Tags builds a tag map from alternating keys and values. Empty values and
// a trailing key without value are dropped.
func Tags(kv ...string) map[string]string {
	tags := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			tags[kv[i]] = kv[i+1]
		}
	}
	return tags
}

// CaptureException records err with tags on the current monitor.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	current.CaptureException(err, tags)
}

// Recover reports a panic in the calling goroutine. Use with defer.
func Recover() {
	current.Recover()
}

// Flush waits up to d for buffered events to be sent.
func Flush(d time.Duration) {
	current.Flush(d)
}
