package port

import (
	"testing"
	"time"

	"github.com/biaboi/Kora/sched"
	"github.com/stretchr/testify/require"
)

func TestTickerPortDrivesTickHandler(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4), sched.WithTickRate(1000))
	go k.Start()

	p := NewTickerPort()
	stop := make(chan struct{})
	go p.Run(k, 1000, stop)

	require.Eventually(t, func() bool {
		return k.Tick() >= 5
	}, time.Second, 2*time.Millisecond, "ticker port must advance the kernel's tick count")

	close(stop)
}

func TestTickerPortWakeIsHarmlessWithoutListener(t *testing.T) {
	p := NewTickerPort()
	p.Wake() // must not block or panic when Run has not started yet
}
