package resource

import "sync"

// Observer receives lifecycle events from every Resource in the process.
type Observer interface {
	Opened(format, scheme string)
	Closed(format string, bytes int64, rows int)
	Failed(op string, kind Kind)
}

type nopObserver struct{}

func (nopObserver) Opened(string, string)     {}
func (nopObserver) Closed(string, int64, int) {}
func (nopObserver) Failed(string, Kind)       {}

var (
	observerMu sync.RWMutex
	observer   Observer = nopObserver{}
)

// SetObserver installs the process-wide observer. nil restores the no-op.
func SetObserver(o Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	observer = o
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return observer
}

// report forwards a failure to the observer and returns err unchanged.
func report(op string, err error) error {
	if err != nil {
		currentObserver().Failed(op, KindOf(err))
	}
	return err
}
