package sched

// Config bundles the kernel's build-time tunables.
type Config struct {
	MaxPriorities  int // number of distinct priority levels, capped at 32
	TickRate       int // ticks per second, informational
	MinStackBudget int // simulated stack-budget floor per task
	Hooks          Hooks
	Heap           DeferredDrainer
}

// Option configures a Kernel at construction time, following the
// functional-options shape used throughout the example pack
// (eventloop.Option).
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		MaxPriorities:  16,
		TickRate:       1000,
		MinStackBudget: 256,
		Hooks:          NoopHooks{},
	}
}

// WithMaxPriorities sets the number of distinct priority levels
// (including the idle task's level). Capped at 32, matching the
// source's 32-bit priority bitmap.
func WithMaxPriorities(n int) Option {
	return func(c *Config) {
		if n > 32 {
			n = 32
		}
		c.MaxPriorities = n
	}
}

// WithTickRate sets the ticks-per-second the idle loop paces its
// real-time sleep by. CPUUtilization's 400-tick window is counted in
// absolute ticks regardless of this rate, the same way task.c's
// os_tick_count-based window is independent of the hardware tick
// frequency.
func WithTickRate(n int) Option {
	return func(c *Config) { c.TickRate = n }
}

// WithMinStackBudget sets the simulated per-task stack budget floor
// used by the Checkpoint-driven watermark check.
func WithMinStackBudget(n int) Option {
	return func(c *Config) { c.MinStackBudget = n }
}

// WithHooks installs a structured-event sink (see korlog for the
// logiface/stumpy-backed implementation).
func WithHooks(h Hooks) Option {
	return func(c *Config) { c.Hooks = h }
}

// WithHeap attaches a deferred-free drain target (a *kheap.Heap) that
// the idle task polls every iteration, matching the source's idle-task
// free-queue drain (spec: the idle task drains the deferred-free
// stack). Accepting the narrow DeferredDrainer interface rather than
// importing kheap directly keeps sched from depending on kheap.
func WithHeap(h DeferredDrainer) Option {
	return func(c *Config) { c.Heap = h }
}
