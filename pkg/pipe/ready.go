package pipe

import (
	"fmt"
	"os"
	"sync"
)

// readyToken is the payload a worker writes once its listening socket is bound
const readyToken = "ready"

// Notifier writes the readiness token to a well-known pipe path exactly once
// per worker lifetime. A reader blocked on the path unblocks a single time;
// further Notify calls are no-ops so a restarted serve loop cannot signal
// readiness twice.
type Notifier struct {
	Path string

	once sync.Once
}

// Notify opens the pipe path for writing, writes the token and closes it.
// The open blocks until a reader is present when Path is a fifo, matching the
// caller side that blocks reading until the worker is up.
func (n *Notifier) Notify() error {
	var err error
	n.once.Do(func() {
		var f *os.File
		f, err = os.OpenFile(n.Path, os.O_WRONLY, 0)
		if err != nil {
			err = fmt.Errorf("readiness: open %s: %w", n.Path, err)
			return
		}
		defer f.Close()
		if _, err = f.WriteString(readyToken); err != nil {
			err = fmt.Errorf("readiness: write %s: %w", n.Path, err)
			return
		}
		// pipes are unbuffered on close, nothing further to flush
	})
	return err
}
