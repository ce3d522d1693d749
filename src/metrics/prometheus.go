// Package metrics contains support for reporting counts of diagnostics to an external server,
// currently a Prometheus pushgateway. Because we run as a transient process
// we can't wait around for Prometheus to call us, we've got to push to them.
package metrics

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/shlex"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/thought-machine/linkdiag/src/cli"
	"github.com/thought-machine/linkdiag/src/cli/logging"
	"github.com/thought-machine/linkdiag/src/core"
)

var log = logging.Log

// This is the maximum number of errors after which we will stop attempting to send metrics.
const maxErrors = 3

// jobName is the job we push metrics under.
const jobName = "linkdiag"

type metrics struct {
	url                 string
	client              *retryablehttp.Client
	registry            *prometheus.Registry
	ticker              *time.Ticker
	timeout             time.Duration
	diagnosticCounter   *prometheus.CounterVec
	terminationsCounter *prometheus.CounterVec

	// newMetrics is set by every recording, which happens under the diagnostic handler's lock,
	// so it never waits for the mutex below.
	newMetrics atomic.Bool

	// mutex serialises pushes and guards the fields after it.
	mutex     sync.Mutex
	cancelled bool
	errors    int
	pushes    int
}

// m is the singleton metrics instance.
var m *metrics

// InitFromConfig sets up the initial metrics from the configuration.
func InitFromConfig(config *core.Configuration) {
	if config.Metrics.PushGatewayURL != "" {
		defer func() {
			if r := recover(); r != nil {
				log.Fatalf("%s", r)
			}
		}()
		labels, err := config.CustomMetricLabels()
		if err != nil {
			panic(err)
		}
		m = initMetrics(config.Metrics.PushGatewayURL.String(), time.Duration(config.Metrics.PushFrequency),
			time.Duration(config.Metrics.PushTimeout), config.Metrics.PushRetries, labels)
	}
}

// initMetrics initialises a new metrics instance.
// This is deliberately not exposed but is useful for testing.
func initMetrics(url string, frequency, timeout time.Duration, retries int, customLabels map[string]string) *metrics {
	u, err := user.Current()
	if err != nil {
		log.Warning("Can't determine current user name for metrics")
		u = &user.User{Username: "unknown"}
	}
	constLabels := prometheus.Labels{
		"user": u.Username,
		"arch": runtime.GOOS + "_" + runtime.GOARCH,
	}
	for k, v := range customLabels {
		constLabels[k] = deriveLabelValue(v)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = timeout / 10
	client.RetryWaitMax = timeout / 2
	client.Logger = &cli.HTTPLogWrapper{Log: log}

	m := &metrics{
		url:      url,
		client:   client,
		registry: prometheus.NewRegistry(),
		timeout:  timeout,
		ticker:   time.NewTicker(frequency),
	}

	// Count of diagnostics by severity, and whether they were printed or suppressed by the error limit.
	m.diagnosticCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "diagnostics_total",
		Help:        "Count of diagnostics reported, by severity",
		ConstLabels: constLabels,
	}, []string{"severity", "printed"})

	// Count of deliberate terminations by exit code.
	m.terminationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "terminations_total",
		Help:        "Count of times the process terminated itself",
		ConstLabels: constLabels,
	}, []string{"code"})

	m.registry.MustRegister(m.diagnosticCounter, m.terminationsCounter)

	go m.keepPushing()

	return m
}

// Stop shuts down the metrics and ensures the final ones are sent before returning.
func Stop() {
	if m != nil {
		m.stop()
	}
}

func (m *metrics) stop() {
	m.ticker.Stop()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.cancelled {
		m.errors = m.pushMetrics()
	}
}

// Record records a single diagnostic of the given severity.
func Record(severity string, printed bool) {
	if m != nil {
		m.record(severity, printed)
	}
}

// RecordTermination records that the process is about to exit with the given code.
func RecordTermination(code int) {
	if m != nil {
		m.terminationsCounter.WithLabelValues(fmt.Sprint(code)).Inc()
		m.newMetrics.Store(true)
	}
}

func (m *metrics) record(severity string, printed bool) {
	m.diagnosticCounter.WithLabelValues(severity, b(printed)).Inc()
	m.newMetrics.Store(true)
}

func b(value bool) string {
	if value {
		return "true"
	}
	return "false"
}

func (m *metrics) keepPushing() {
	for range m.ticker.C {
		m.mutex.Lock()
		m.errors = m.pushMetrics()
		if m.errors >= maxErrors {
			log.Warning("Metrics don't seem to be working, giving up")
			m.cancelled = true
			m.mutex.Unlock()
			return
		}
		m.mutex.Unlock()
	}
}

// deadline applies a deadline to an arbitrary function and returns when either the function
// completes or the deadline expires.
func deadline(f func() error, timeout time.Duration) error {
	c := make(chan error, 1)
	go func() {
		c <- f()
	}()
	select {
	case err := <-c:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("Metrics push timed out")
	}
}

// pushMetrics attempts to send some new metrics to the server. It returns the new number of errors.
// It must be called with the mutex held.
func (m *metrics) pushMetrics() int {
	if !m.newMetrics.Swap(false) {
		return m.errors
	}
	start := time.Now()
	hostname, _ := os.Hostname()
	if err := deadline(func() error {
		return push.New(m.url, jobName).Client(m.client.StandardClient()).Gatherer(m.registry).Grouping("instance", hostname).Add()
	}, m.timeout); err != nil {
		log.Warning("Could not push metrics to the repository: %s", err)
		m.newMetrics.Store(true)
		return m.errors + 1
	}
	m.pushes++
	log.Debug("Push #%d of metrics in %0.3fs", m.pushes, time.Since(start).Seconds())
	return 0
}

// deriveLabelValue runs a command and returns its output.
// It panics if the command fails; InitFromConfig turns that into a fatal log.
func deriveLabelValue(cmd string) string {
	parts, err := shlex.Split(cmd)
	if err != nil {
		panic(fmt.Sprintf("Invalid custom metric command [%s]: %s", cmd, err))
	}
	log.Debug("Running custom label command: %s", cmd)
	b, err := exec.Command(parts[0], parts[1:]...).Output()
	log.Debug("Got output: %s", b)
	if err != nil {
		panic(fmt.Sprintf("Custom metric command [%s] failed: %s", cmd, err))
	}
	value := strings.TrimSpace(string(b))
	if strings.Contains(value, "\n") {
		panic(fmt.Sprintf("Return value of custom metric command [%s] contains spaces: %s", cmd, value))
	}
	return value
}
