// Package eventlog appends companion events to date-organized JSONL files.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("eventlog: recorder closed")

// ErrBufferFull is returned when the write queue is full; the event is
// dropped rather than blocking the caller.
var ErrBufferFull = errors.New("eventlog: buffer full")

// Recorder writes events asynchronously to <dir>/<YYYY-MM-DD>/<name>.jsonl.
type Recorder struct {
	dir       string
	name      string
	maxSizeMB int
	now       func() time.Time

	writeCh chan broadcast.Event
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	currentDate string
	logger      *lumberjack.Logger
}

// NewRecorder starts a recorder. An empty name uses the start time.
func NewRecorder(dir, name string, bufferSize, maxSizeMB int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	if name == "" {
		name = fmt.Sprintf("%d", time.Now().Unix())
	}
	r := &Recorder{
		dir:       dir,
		name:      name,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan broadcast.Event, bufferSize),
		done:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writeLoop()
	return r
}

// Record queues evt.
func (r *Recorder) Record(evt broadcast.Event) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case r.writeCh <- evt:
		return nil
	default:
		slog.Warn("event log buffer full, dropping event", "topic", evt.Topic)
		return ErrBufferFull
	}
}

// Close flushes queued events and closes the current file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()

	for {
		select {
		case evt := <-r.writeCh:
			r.write(evt)
			continue
		default:
		}
		break
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logger != nil {
		return r.logger.Close()
	}
	return nil
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	for {
		select {
		case evt := <-r.writeCh:
			r.write(evt)
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) write(evt broadcast.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("event marshal failed", "topic", evt.Topic, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	date := r.now().UTC().Format("2006-01-02")
	if r.logger == nil || date != r.currentDate {
		if err := r.rotate(date); err != nil {
			slog.Error("event log rotate failed", "error", err)
			return
		}
	}
	if _, err := r.logger.Write(append(data, '\n')); err != nil {
		slog.Error("event log write failed", "topic", evt.Topic, "error", err)
	}
}

func (r *Recorder) rotate(date string) error {
	if r.logger != nil {
		if err := r.logger.Close(); err != nil {
			slog.Debug("event log close failed", "error", err)
		}
		r.logger = nil
	}
	dir := filepath.Join(r.dir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, r.name+".jsonl")
	r.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    r.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
	}
	r.currentDate = date
	slog.Info("event log opened", "file", filename)
	return nil
}
