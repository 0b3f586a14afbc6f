// Package alert handles sending notifications.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier is the interface for sending alert messages.
type Notifier interface {
	Send(message string) error
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when alerting is disabled.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(message string) error {
	return nil
}

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error {
	return nil
}

// LogNotifier writes every alert as a structured warning.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger is replaced by a no-op one.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the message under "monitoring_alert".
func (n *LogNotifier) Send(message string) error {
	n.logger.Warn("monitoring_alert", zap.String("alert", message))
	return nil
}

// Close flushes the underlying logger.
func (n *LogNotifier) Close() error {
	// Sync on stdout/stderr returns EINVAL on some platforms.
	_ = n.logger.Sync()
	return nil
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("notifier is closed")

// BufferedNotifier collects messages and forwards them to another Notifier
// as one combined report per interval. Remaining messages are sent on Close.
type BufferedNotifier struct {
	next     Notifier
	logger   *zap.Logger
	interval time.Duration

	mu     sync.Mutex
	buffer []string
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewBufferedNotifier starts the flush loop. An interval <= 0 disables the
// periodic flush; messages are then only delivered by Flush or Close.
func NewBufferedNotifier(next Notifier, interval time.Duration, logger *zap.Logger) *BufferedNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &BufferedNotifier{
		next:     next,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
	if interval > 0 {
		n.wg.Add(1)
		go n.run()
	}
	return n
}

func (n *BufferedNotifier) run() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := n.Flush(); err != nil {
				n.logger.Error("failed to flush alert buffer", zap.Error(err))
			}
		case <-n.done:
			return
		}
	}
}

// Send appends a message to the buffer.
func (n *BufferedNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.buffer = append(n.buffer, message)
	return nil
}

// Pending returns the number of buffered messages.
func (n *BufferedNotifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.buffer)
}

// Flush forwards the buffered messages as a single report. An empty buffer
// sends nothing.
func (n *BufferedNotifier) Flush() error {
	n.mu.Lock()
	msgs := n.buffer
	n.buffer = nil
	n.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}
	return n.next.Send(formatReport(msgs, time.Now()))
}

// Close stops the flush loop, sends what is left and closes the next notifier.
func (n *BufferedNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()

	flushErr := n.Flush()
	closeErr := n.next.Close()
	return multierr.Combine(flushErr, closeErr)
}

func formatReport(msgs []string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Alert Report (%s) ---\n", at.UTC().Format(time.RFC3339))
	for _, m := range msgs {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
