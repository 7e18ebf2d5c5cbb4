// Package korlog implements sched.Hooks with a structured logger built
// on github.com/joeycumines/logiface and github.com/joeycumines/stumpy
// (its JSON writer backend), replacing the source's raw hook-table of
// function pointers (task_switched_hook, task_delete_hook, idle_hook,
// stack_overflow_hook, tick_hook, tick_reset_hook, alloc_failed_hook,
// free_failed_hook) with one logger value per kernel, following the
// swappable-logger pattern in the example pack's structured-logging
// eventloop integration.
package korlog

import (
	"io"

	"github.com/biaboi/Kora/kheap"
	"github.com/biaboi/Kora/sched"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger adapts a logiface.Logger[*stumpy.Event] to sched.Hooks. The
// zero value is not usable; construct with New.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// New builds a korlog.Logger writing newline-delimited JSON to w at
// the given minimum level.
func New(w io.Writer, level logiface.Level) *Logger {
	l := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
	return &Logger{l: l}
}

var (
	_ sched.Hooks       = (*Logger)(nil)
	_ kheap.FailureHooks = (*Logger)(nil)
)

// TaskSwitched logs a context switch at debug level; this is the
// kernel's hottest hook, so it is gated behind Enabled() to avoid
// building the event when debug logging is off.
func (lg *Logger) TaskSwitched(from, to *sched.Task) {
	b := lg.l.Debug()
	if !b.Enabled() {
		b.Release()
		return
	}
	fromName := "<none>"
	if from != nil {
		fromName = from.Name
	}
	b.Str("from", fromName).Str("to", to.Name).Log("task switched")
}

// TaskDeleted logs task teardown at info level.
func (lg *Logger) TaskDeleted(t *sched.Task) {
	lg.l.Info().Str("task", t.Name).Log("task deleted")
}

// Idle logs idle-task entry at trace level, the noisiest level, since
// it fires every idle-loop iteration.
func (lg *Logger) Idle() {
	lg.l.Trace().Log("idle")
}

// StackOverflow logs a stack-watermark trip at the critical level —
// this condition is fatal on the original target.
func (lg *Logger) StackOverflow(t *sched.Task) {
	lg.l.Crit().Str("task", t.Name).Log("stack overflow")
}

// Tick logs the tick counter at trace level.
func (lg *Logger) Tick(tick uint64) {
	b := lg.l.Trace()
	if !b.Enabled() {
		b.Release()
		return
	}
	b.Uint64("tick", tick).Log("tick")
}

// TickReset logs the tick-counter rebase (sleep-list Value rewrite
// that keeps the monotonic counter from overflowing) at info level.
func (lg *Logger) TickReset() {
	lg.l.Info().Log("tick counter reset")
}

// AllocFailed logs a kheap allocation failure at warning level.
func (lg *Logger) AllocFailed(size int) {
	lg.l.Warning().Int("requested_bytes", size).Log("allocation failed")
}

// FreeFailed logs a kheap free-time corruption detection at error
// level. The allocator itself panics with *kheap.CorruptionError;
// this hook exists for callers that recover and want it on record.
func (lg *Logger) FreeFailed() {
	lg.l.Err().Log("free failed")
}
