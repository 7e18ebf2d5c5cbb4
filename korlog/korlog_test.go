package korlog

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/biaboi/Kora/sched"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func TestLoggerImplementsHooks(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, logiface.LevelTrace)

	k := sched.New(sched.WithMaxPriorities(4), sched.WithHooks(lg))
	done := make(chan struct{})
	k.CreateTask("t", 0, func(self *sched.Task) {
		close(done)
		self.Checkpoint()
	})
	go k.Start()
	<-done

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `"msg":"idle"`)
	}, time.Second, 5*time.Millisecond, "idle hook must be logged once the idle task runs")
}

func TestLoggerRespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, logiface.LevelCritical)

	lg.Idle()
	lg.Tick(1)
	lg.AllocFailed(16)

	require.Empty(t, strings.TrimSpace(buf.String()), "below-threshold levels must not be written")

	lg.StackOverflow(&sched.Task{Name: "victim"})
	require.Contains(t, buf.String(), "stack overflow")
}
