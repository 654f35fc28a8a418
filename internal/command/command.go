package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CancelledMessage is the abort message used when a cancellation checkpoint
// observes a cancelled token.
const CancelledMessage = "execution of the current action was cancelled"

// Effect is the leaf behaviour of a command.
//
// Apply runs the forward effect and Revert the reverse one. Returning an
// error (or panicking) produces a fault Outcome. An effect may call
// c.Completed, c.AbortCommand or c.AsCancelable itself; otherwise the
// command completes with success when the effect returns nil.
type Effect interface {
	Apply(ctx context.Context, c *Command) error
	Revert(ctx context.Context, c *Command) error
}

// Describer is implemented by effects that can describe their parameters.
type Describer interface {
	Describe() string
}

// Namer is implemented by effects that want a display name other than their
// Go type name.
type Namer interface {
	Name() string
}

// Merger is implemented by effects that can absorb a following command.
type Merger interface {
	TryToMerge(next *Command) bool
}

// Host is the owner a command reports to. The manager implements it.
type Host interface {
	// MarshallBack runs fn on the owner goroutine and returns after it ran.
	MarshallBack(ctx context.Context, fn func(ctx context.Context)) error

	// CommandCompleted is told about every accepted outcome before any
	// callback runs. Aborted outcomes excise the owning transaction.
	CommandCompleted(ctx context.Context, o Outcome) error
}

// Publisher is the publish capability handed to commands at submission.
// The command only stores it; effects may use it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Funcs adapts a pair of functions to an Effect.
type Funcs struct {
	Label    string
	Forward  func(ctx context.Context, c *Command) error
	Backward func(ctx context.Context, c *Command) error
}

// Apply calls Forward, if set.
func (f Funcs) Apply(ctx context.Context, c *Command) error {
	if f.Forward == nil {
		return nil
	}
	return f.Forward(ctx, c)
}

// Revert calls Backward, if set.
func (f Funcs) Revert(ctx context.Context, c *Command) error {
	if f.Backward == nil {
		return nil
	}
	return f.Backward(ctx, c)
}

// Name returns Label, or "Funcs" when empty.
func (f Funcs) Name() string {
	if f.Label == "" {
		return "Funcs"
	}
	return f.Label
}

// Command is a stateful unit of work with a forward and a reverse effect.
//
// Thread-safety: a command runs one cycle at a time. Completed, Cancel,
// UpdateProgress and the accessors may be called from any goroutine.
type Command struct {
	id     string
	effect Effect
	name   string

	counter   atomic.Int64
	completed atomic.Bool

	mu        sync.Mutex
	cfg       *Config
	host      Host
	publisher Publisher
	token     context.Context
	cancel    context.CancelFunc
	direction Direction
	started   time.Time
}

// Option configures a Command at construction.
type Option func(*options)

type options struct {
	id         string
	gen        IDGenerator
	cancelable bool
}

// WithID sets the command ID instead of generating one.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithIDGenerator sets the generator used when no explicit ID is given.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		o.gen = gen
	}
}

// Cancelable gives the command a cancellation token at construction.
func Cancelable() Option {
	return func(o *options) {
		o.cancelable = true
	}
}

// New creates a command around effect.
//
// Panics with a *UsageError if effect is nil.
func New(effect Effect, opts ...Option) *Command {
	if effect == nil {
		panic(NewUsageError(ErrCodeNilCommand, "command needs an effect"))
	}
	o := options{gen: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = o.gen.Generate()
	}

	c := &Command{
		id:     o.id,
		effect: effect,
		name:   effectName(effect),
	}
	if o.cancelable {
		c.ResetToken()
	}
	return c
}

func effectName(effect Effect) string {
	if n, ok := effect.(Namer); ok {
		return n.Name()
	}
	name := fmt.Sprintf("%T", effect)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// ID returns the command identifier.
func (c *Command) ID() string { return c.id }

// Name returns the display name of the command's effect.
func (c *Command) Name() string { return c.name }

// Effect returns the wrapped effect.
func (c *Command) Effect() Effect { return c.effect }

// Description returns the effect's parameter description, if it has one.
func (c *Command) Description() string {
	if d, ok := c.effect.(Describer); ok {
		return d.Describe()
	}
	return ""
}

func (c *Command) String() string {
	return fmt.Sprintf("CMD %s : %s", c.name, c.Description())
}

// ExecuteCount returns the execution counter.
func (c *Command) ExecuteCount() int64 { return c.counter.Load() }

// CanExecute reports whether the command is at rest (counter == 0).
func (c *Command) CanExecute() bool { return c.counter.Load() == 0 }

// CanUnExecute is the negation of CanExecute.
func (c *Command) CanUnExecute() bool { return !c.CanExecute() }

// TryToMerge asks the effect to absorb next. Effects that are not Mergers
// never merge.
func (c *Command) TryToMerge(next *Command) bool {
	if m, ok := c.effect.(Merger); ok {
		return m.TryToMerge(next)
	}
	return false
}

// Config returns the configuration of the latest submission, or nil.
func (c *Command) Config() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Publisher returns the publish capability handed over at submission.
func (c *Command) Publisher() Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publisher
}

// Host returns the bound host, or nil for an unmanaged command.
func (c *Command) Host() Host {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Bind attaches the command to a host and a publish capability, and makes
// cfg its current configuration unless cfg is nil. The manager calls this
// on every submission.
func (c *Command) Bind(cfg *Config, host Host, publisher Publisher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg != nil {
		c.cfg = cfg
	}
	c.host = host
	c.publisher = publisher
}

func (c *Command) setConfig(cfg *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Execute runs the forward effect as one cycle.
//
// The returned error is non-nil only when the cycle faulted and no
// completion callback was registered to receive the fault, or when the
// completion could not be marshalled to the owner.
func (c *Command) Execute(ctx context.Context) error {
	return c.cycle(ctx, Forward, c.effect.Apply)
}

// UnExecute runs the reverse effect as one cycle. See Execute.
func (c *Command) UnExecute(ctx context.Context) error {
	return c.cycle(ctx, Backward, c.effect.Revert)
}

func (c *Command) cycle(ctx context.Context, dir Direction, body func(context.Context, *Command) error) error {
	c.mu.Lock()
	c.direction = dir
	c.started = time.Now()
	c.mu.Unlock()
	c.completed.Store(false)

	delta := int64(1)
	if dir == Backward {
		delta = -1
	}
	defer c.counter.Add(delta)

	fault := c.invoke(ctx, body)
	if c.completed.CompareAndSwap(false, true) {
		return c.deliver(ctx, c.fill(Outcome{Err: fault}))
	}
	if fault != nil {
		if c.callback() == nil {
			return fault
		}
		slog.Warn("fault after explicit completion dropped",
			"command", c.id,
			"direction", dir,
			"error", fault)
	}
	return nil
}

func (c *Command) invoke(ctx context.Context, body func(context.Context, *Command) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return body(ctx, c)
}

// fill stamps the outcome with this command and the current cycle.
func (c *Command) fill(o Outcome) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	o.Command = c
	if o.Direction == 0 {
		o.Direction = c.direction
	}
	if o.Elapsed == 0 && !c.started.IsZero() {
		o.Elapsed = time.Since(c.started)
	}
	return o
}

// Completed delivers the outcome of the current cycle. Only the first call
// per cycle is accepted; later calls are dropped and return nil.
//
// An accepted outcome is reported to the host first. Then, if no completion
// callback is registered, a fault outcome is returned as an error. An
// unmanaged command runs the callback inline; a managed one marshals it to
// the owner goroutine.
func (c *Command) Completed(ctx context.Context, o Outcome) error {
	if !c.completed.CompareAndSwap(false, true) {
		slog.Debug("completion dropped", "command", c.id, "status", o.Status())
		return nil
	}
	return c.deliver(ctx, c.fill(o))
}

func (c *Command) deliver(ctx context.Context, o Outcome) error {
	host := c.Host()
	if host != nil {
		if err := host.CommandCompleted(ctx, o); err != nil {
			return err
		}
	}

	cb := c.callback()
	if cb == nil {
		return o.Err
	}
	if host == nil {
		cb(ctx, o)
		return nil
	}
	return host.MarshallBack(ctx, func(ctx context.Context) {
		cb(ctx, o)
	})
}

func (c *Command) callback() func(context.Context, Outcome) {
	cfg := c.Config()
	if cfg == nil {
		return nil
	}
	return cfg.onCompleted
}

// AbortCommand completes the current cycle as aborted with message.
func (c *Command) AbortCommand(ctx context.Context, message string) error {
	return c.Completed(ctx, Outcome{Aborted: true, Message: message})
}

// UpdateProgress reports progress to the configured progress callback.
// It does nothing when no progress callback is configured. Elapsed is
// filled in from the cycle start when left zero.
func (c *Command) UpdateProgress(ctx context.Context, p Progress) {
	cfg := c.Config()
	if cfg == nil || cfg.onProgress == nil {
		return
	}
	cb := cfg.onProgress

	c.mu.Lock()
	if p.Elapsed == 0 && !c.started.IsZero() {
		p.Elapsed = time.Since(c.started)
	}
	c.mu.Unlock()

	host := c.Host()
	if host == nil {
		cb(ctx, p)
		return
	}
	err := host.MarshallBack(ctx, func(ctx context.Context) {
		cb(ctx, p)
	})
	if err != nil {
		slog.Warn("progress not delivered", "command", c.id, "error", err)
	}
}

// AsCancelable is a cancellation checkpoint for loops. If cancellation was
// not requested it runs step, reports its progress and returns false.
// Otherwise it aborts the command with CancelledMessage, skips step and
// returns true.
func (c *Command) AsCancelable(ctx context.Context, step func() Progress) bool {
	if c.CancellationRequested() {
		if err := c.AbortCommand(ctx, CancelledMessage); err != nil {
			slog.Warn("abort not delivered", "command", c.id, "error", err)
		}
		return true
	}
	c.UpdateProgress(ctx, step())
	return false
}

// ResetToken gives the command a fresh cancellation token, making it
// cancelable. Background dispatch calls this before every run.
func (c *Command) ResetToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.token, c.cancel = context.WithCancel(context.Background())
}

// IsCancelable reports whether the command has a cancellation token.
func (c *Command) IsCancelable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Cancel requests cooperative cancellation. The running effect observes it
// at its next checkpoint. Returns a *UsageError if the command is not
// cancelable.
func (c *Command) Cancel() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return &UsageError{
			Code:      ErrCodeNotCancelable,
			Message:   "command was not constructed as cancelable",
			CommandID: c.id,
		}
	}
	cancel()
	return nil
}

// CancellationRequested reports whether Cancel was called on the current token.
func (c *Command) CancellationRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil && c.token.Err() != nil
}

// Done returns a channel closed when cancellation is requested, or nil for
// a command that is not cancelable.
func (c *Command) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil
	}
	return c.token.Done()
}
