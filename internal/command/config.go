package command

import "context"

// Config is the execution configuration of one submission.
//
// Build one per submission with For and hand it to the manager:
//
//	cfg := command.For(cmd).
//		WhenCompleted(func(ctx context.Context, o command.Outcome) { ... }).
//		InBackground()
//	err := mgr.Do(ctx, cfg)
//
// The completion and progress callbacks may each be set once. A second
// assignment panics with a *UsageError.
type Config struct {
	cmd         *Command
	onCompleted func(ctx context.Context, o Outcome)
	onProgress  func(ctx context.Context, p Progress)
	record      bool
	background  bool
}

// For creates a configuration for c and binds it to c, replacing the
// configuration of any previous submission.
//
// Panics with a *UsageError if c is nil.
func For(c *Command) *Config {
	if c == nil {
		panic(NewUsageError(ErrCodeNilCommand, "cannot configure a nil command"))
	}
	cfg := &Config{cmd: c, record: true}
	c.setConfig(cfg)
	return cfg
}

// WhenCompleted sets the completion callback.
//
// A managed callback runs on the owner goroutine. Manager calls made from
// it must use the ctx it is given; a captured outer ctx is queued behind
// the running operation and deadlocks the owner.
func (cfg *Config) WhenCompleted(fn func(ctx context.Context, o Outcome)) *Config {
	if cfg.onCompleted != nil {
		panic(&UsageError{
			Code:      ErrCodeCallbackAlreadySet,
			Message:   "completion callback already set for this submission",
			CommandID: cfg.cmd.ID(),
		})
	}
	cfg.onCompleted = fn
	return cfg
}

// OnProgress sets the progress callback. Like WhenCompleted, it runs on
// the owner goroutine of a managed command and must pass its own ctx to
// manager calls.
func (cfg *Config) OnProgress(fn func(ctx context.Context, p Progress)) *Config {
	if cfg.onProgress != nil {
		panic(&UsageError{
			Code:      ErrCodeProgressAlreadySet,
			Message:   "progress callback already set for this submission",
			CommandID: cfg.cmd.ID(),
		})
	}
	cfg.onProgress = fn
	return cfg
}

// WithoutUndo runs the command without recording it for undo/redo.
func (cfg *Config) WithoutUndo() *Config {
	cfg.record = false
	return cfg
}

// InBackground runs the command on a worker goroutine.
func (cfg *Config) InBackground() *Config {
	cfg.background = true
	return cfg
}

// Command returns the configured command.
func (cfg *Config) Command() *Command { return cfg.cmd }

// Recorded reports whether the submission is recorded for undo (default true).
func (cfg *Config) Recorded() bool { return cfg.record }

// Background reports whether the submission runs on a worker (default false).
func (cfg *Config) Background() bool { return cfg.background }

// HasCallback reports whether a completion callback is set.
func (cfg *Config) HasCallback() bool { return cfg.onCompleted != nil }
