// Package mail defines the outbound email collaborator that delivers
// verification codes. Template rendering and transport belong to the
// implementation; the engine treats any send failure as soft.
package mail

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Purpose tells the dispatcher which template the code belongs to.
type Purpose string

const (
	// PurposeLoginCode is the second login step's one-time code.
	PurposeLoginCode Purpose = "login_code"
	// PurposeLoginCodeResend marks an explicitly re-requested code.
	PurposeLoginCodeResend Purpose = "login_code_resend"
)

// Message is one outbound verification email.
type Message struct {
	To      string  `json:"to"`
	Code    string  `json:"code"`
	Purpose Purpose `json:"purpose"`
}

// Dispatcher delivers verification codes. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpDispatcher drops every message. Useful in tests and as the default
// when no mail transport is wired.
type NoOpDispatcher struct{}

// Send implements Dispatcher.
func (NoOpDispatcher) Send(context.Context, Message) error { return nil }

// WriterDispatcher writes one JSON line per message, for local development
// where reading the code off the log replaces a mailbox.
type WriterDispatcher struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewWriterDispatcher creates a WriterDispatcher on w.
func NewWriterDispatcher(w io.Writer) *WriterDispatcher {
	return &WriterDispatcher{writer: w}
}

// Send implements Dispatcher.
func (d *WriterDispatcher) Send(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.writer.Write(data); err != nil {
		return err
	}
	_, err = d.writer.Write([]byte("\n"))
	return err
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, msg Message) error

// Send implements Dispatcher.
func (f DispatcherFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
