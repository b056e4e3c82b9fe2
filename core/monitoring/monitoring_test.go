package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	errs []error
	tags []map[string]string
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recorder) Recover()            {}
func (r *recorder) Flush(time.Duration) {}

func TestTags(t *testing.T) {
	assert.Equal(t, map[string]string{"program_id": "art", "stage": "allocate"},
		Tags("program_id", "art", "date", "", "stage", "allocate", "dangling"))
	assert.Empty(t, Tags())
}

func TestCaptureUsesInstalledMonitor(t *testing.T) {
	prev := current
	t.Cleanup(func() { current = prev })

	rec := &recorder{}
	Init(rec)
	Init(nil)
	CaptureException(nil, nil)
	CaptureException(errors.New("boom"), Tags("module", "roller"))

	assert.Len(t, rec.errs, 1)
	assert.Equal(t, "roller", rec.tags[0]["module"])
}
