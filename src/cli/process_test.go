package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitHandlersRunInOrder(t *testing.T) {
	var calls []string
	AtExit(func() { calls = append(calls, "metrics") })
	AtExit(func() { calls = append(calls, "logfile") })
	RunExitHandlers()
	assert.Equal(t, []string{"metrics", "logfile"}, calls)
}

func TestExitHandlersRunOnce(t *testing.T) {
	count := 0
	AtExit(func() { count++ })
	RunExitHandlers()
	RunExitHandlers()
	assert.Equal(t, 1, count)
}

func TestExitHandlersRegisteredLater(t *testing.T) {
	count := 0
	AtExit(func() { count++ })
	RunExitHandlers()
	AtExit(func() { count += 10 })
	RunExitHandlers()
	assert.Equal(t, 11, count)
}
