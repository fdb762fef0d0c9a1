package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// Common timeouts
	DefaultTimeout time.Duration

	// Progress reporting
	ProgressCallback func(message string, percent int)

	// Diagnostic output, stderr when nil
	LogWriter io.Writer

	logMu sync.Mutex
}

// NewContext creates a new application context
func NewContext() *Context {
	return &Context{
		Context:        context.Background(),
		DefaultTimeout: 30 * time.Second,
	}
}

// WithTimeout creates a context with timeout
func (c *Context) WithTimeout(timeout time.Duration) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context, timeout)
	return c.derive(ctx), cancel
}

// WithCancel creates a cancellable context
func (c *Context) WithCancel() (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	return c.derive(ctx), cancel
}

func (c *Context) derive(ctx context.Context) *Context {
	return &Context{
		Context:          ctx,
		OutputFormat:     c.OutputFormat,
		Verbose:          c.Verbose,
		Quiet:            c.Quiet,
		DefaultTimeout:   c.DefaultTimeout,
		ProgressCallback: c.ProgressCallback,
		LogWriter:        c.LogWriter,
	}
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(string, int)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Log outputs a message based on verbosity settings
func (c *Context) Log(message string) {
	if !c.Quiet && c.Verbose {
		c.write(message)
	}
}

// Logf formats and outputs a message based on verbosity settings
func (c *Context) Logf(format string, args ...any) {
	if !c.Quiet && c.Verbose {
		c.write(fmt.Sprintf(format, args...))
	}
}

// Error outputs an error message unless quiet
func (c *Context) Error(message string) {
	if !c.Quiet {
		c.write("Error: " + message)
	}
}

func (c *Context) write(line string) {
	c.logMu.Lock()
	defer c.logMu.Unlock()

	w := c.LogWriter
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, line)
}
