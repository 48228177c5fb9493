package scheduler

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	intentIDMu      sync.Mutex
	intentIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newIntentID mints a time-sortable, globally unique id for one Intent's
// lifetime, used to correlate its log lines and metrics.
func newIntentID() string {
	intentIDMu.Lock()
	defer intentIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), intentIDEntropy).String()
}
