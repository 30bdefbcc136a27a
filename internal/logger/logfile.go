package logger

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tphakala/imagelens/internal/errors"
)

const (
	logFileMode   = 0o600
	logBufferSize = 32 << 10
)

// logFile is an append-only log file. Modules configured with the same path
// share one logFile. Lines are buffered and flushed on a timer and at Close;
// rotation is left to logrotate with copytruncate.
type logFile struct {
	path string

	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func openLogFile(path string, flushEvery time.Duration) (*logFile, error) {
	if err := ensureFileDirectory(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // path comes from the logging config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	lf := &logFile{
		path: path,
		f:    f,
		buf:  bufio.NewWriterSize(f, logBufferSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if flushEvery <= 0 {
		flushEvery = DefaultFlushInterval
	}
	go lf.flushLoop(flushEvery)
	return lf, nil
}

func (lf *logFile) flushLoop(every time.Duration) {
	defer close(lf.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-lf.stop:
			return
		case <-ticker.C:
			// a failing flush shows up again on the next Write
			_ = lf.flush()
		}
	}
}

func (lf *logFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.buf == nil {
		return 0, fmt.Errorf("log file %s is closed", lf.path)
	}
	return lf.buf.Write(p)
}

func (lf *logFile) flush() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.buf == nil {
		return nil
	}
	return lf.buf.Flush()
}

// Close flushes and syncs the file before closing it. Later calls return nil.
func (lf *logFile) Close() error {
	var err error
	lf.closeOnce.Do(func() {
		close(lf.stop)
		<-lf.done

		lf.mu.Lock()
		defer lf.mu.Unlock()
		err = errors.Join(lf.buf.Flush(), lf.f.Sync(), lf.f.Close())
		lf.buf, lf.f = nil, nil
	})
	if err != nil {
		return fmt.Errorf("closing log file %s: %w", lf.path, err)
	}
	return nil
}
