//go:build unix

package util

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetupInterruptHandler_StopsOnFirstSignal(t *testing.T) {
	called := make(chan struct{})
	stop := SetupInterruptHandler(func() { close(called) })
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt callback not called")
	}
}
