package cli

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var atexitHandlers []func()
var atexitMutex sync.Mutex

func init() {
	go handleSignals()
}

// handleSignals waits until it receives a terminating signal from the OS, at which point it executes any
// functions previously registered with AtExit, and then exits the process.
func handleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGABRT, syscall.SIGTERM)
	sig := <-ch
	log.Info("Received signal %s", sig)
	// Allow a second signal to terminate the process regardless
	done := make(chan bool)
	go func() {
		RunExitHandlers()
		close(done)
	}()
	select {
	case <-done:
		log.Info("All exit handlers run, shutting down process")
		exit(sig)
	case sig := <-ch:
		log.Warning("Received second signal %s, aborting", sig)
		exit(sig)
	}
}

// AtExit registers a function to be run when the process is about to exit, either because it was
// killed by a signal or because it is being terminated deliberately (see RunExitHandlers).
// Note that this is best-effort; we cannot guarantee that there are not other ways of exiting that
// bypass any mechanism we use here.
func AtExit(f func()) {
	atexitMutex.Lock()
	defer atexitMutex.Unlock()
	atexitHandlers = append(atexitHandlers, f)
}

// RunExitHandlers runs everything registered with AtExit, in registration order.
// Each handler runs at most once; handlers registered afterwards will be run by a later call.
func RunExitHandlers() {
	atexitMutex.Lock()
	handlers := atexitHandlers
	atexitHandlers = nil
	atexitMutex.Unlock()
	for _, h := range handlers {
		h()
	}
}

// exit kills the process with an exit code suitable for the given signal.
func exit(sig os.Signal) {
	if s, ok := sig.(syscall.Signal); ok {
		os.Exit(128 + int(s))
	}
	os.Exit(1)
}
