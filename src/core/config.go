// Utilities for reading the linkdiag config files.

package core

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/please-build/gcfg"

	"github.com/thought-machine/linkdiag/src/cli"
	"github.com/thought-machine/linkdiag/src/cli/logging"
)

var log = logging.Log

// ConfigFileName is the file name for the typical repo config - this is normally checked in
const ConfigFileName string = ".linkdiagconfig"

// LocalConfigFileName is the file name for the local repo config - this is not normally checked in and used to
// override settings on the local machine.
const LocalConfigFileName string = ".linkdiagconfig.local"

// MachineConfigFileName is the file name for the machine-level config - can use this to override things
// for a particular machine (eg. build machine with a different error limit).
const MachineConfigFileName = "/etc/linkdiagconfig"

// DefaultLimitExceededText is printed in place of the first error past the limit.
const DefaultLimitExceededText = "too many errors emitted, stopping now (use --error_limit=0 to see all errors)"

// ConfigFiles returns the default set of config files, in the order they should be read.
func ConfigFiles() []string {
	return []string{MachineConfigFileName, ConfigFileName, LocalConfigFileName}
}

func readConfigFile(config *Configuration, filename string) error {
	if err := gcfg.ReadFileInto(config, filename); err != nil && os.IsNotExist(err) {
		return nil // It's not an error to not have the file at all.
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	log.Debug("Read config from %s", filename)
	return nil
}

// ReadConfigFiles reads a config file from the given locations, in order.
// Values are filled in by defaults initially and then overridden by each file in turn.
func ReadConfigFiles(filenames []string) (*Configuration, error) {
	config := DefaultConfiguration()
	for _, filename := range filenames {
		if err := readConfigFile(config, filename); err != nil {
			return config, err
		}
	}
	return config, config.Validate()
}

// DefaultConfiguration returns the default configuration object with no overrides.
func DefaultConfiguration() *Configuration {
	config := Configuration{}
	config.Diagnostics.ToolName = "ld.lld"
	config.Diagnostics.ErrorLimit = 20 // Same as most linkers; 0 means unlimited.
	config.Diagnostics.Colour = cli.ColourAuto
	config.Diagnostics.LimitExceededText = DefaultLimitExceededText
	config.Metrics.PushFrequency = cli.Duration(400 * time.Millisecond)
	config.Metrics.PushTimeout = cli.Duration(2 * time.Second)
	config.Metrics.PushRetries = 2
	config.Output.MaxSize = cli.ByteSize(cli.GiByte)
	config.Replay.NumThreads = 4
	return &config
}

// A Configuration contains all the settings that can be configured about linkdiag.
// This is parsed from .linkdiagconfig etc; we also auto-generate help messages from its tags.
type Configuration struct {
	Diagnostics struct {
		ToolName          string         `help:"Name prefixed to every diagnostic line when not in IDE mode."`
		ErrorLimit        int            `help:"Number of errors printed in full before they are suppressed. 0 means unlimited."`
		ExitOnLimit       bool           `help:"Terminates immediately once the error limit is exceeded."`
		Colour            cli.ColourMode `help:"Whether to colour the severity of each diagnostic. One of auto, always or never."`
		IDELocations      bool           `help:"Prefixes diagnostics with a source location an IDE can navigate to, in place of the tool name."`
		Verbose           bool           `help:"Prints log lines as well as diagnostics."`
		WarningsAreErrors bool           `help:"Treats every warning as an error."`
		LimitExceededText string         `help:"Printed once, in place of the first error past the limit."`
	} `help:"Controls how diagnostics are formatted and limited."`
	Metrics struct {
		PushGatewayURL cli.URL      `help:"URL of a Prometheus pushgateway to send diagnostic counts to."`
		PushFrequency  cli.Duration `help:"How often to push metrics while running."`
		PushTimeout    cli.Duration `help:"Timeout on each push to the gateway."`
		PushRetries    int          `help:"Number of times a failed push is retried before giving up on it."`
		CustomLabel    []string     `help:"Extra constant labels, as name:command. The command's output becomes the label value."`
	} `help:"Optional reporting of diagnostic counts to Prometheus."`
	Output struct {
		MaxSize cli.ByteSize `help:"Largest output artifact we will write."`
	} `help:"Controls the output artifact."`
	Replay struct {
		NumThreads int `help:"Number of diagnostic streams replayed concurrently."`
	} `help:"Controls replaying of diagnostic streams."`
}

// Validate checks the configuration for values that can never work.
// All problems are reported together rather than stopping at the first one.
func (config *Configuration) Validate() error {
	var errs *multierror.Error
	if config.Diagnostics.ToolName == "" {
		errs = multierror.Append(errs, fmt.Errorf("diagnostics.toolname must not be empty"))
	}
	if config.Diagnostics.ErrorLimit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("diagnostics.errorlimit must not be negative, was %d", config.Diagnostics.ErrorLimit))
	}
	if config.Metrics.PushRetries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("metrics.pushretries must not be negative, was %d", config.Metrics.PushRetries))
	}
	if config.Replay.NumThreads < 1 {
		errs = multierror.Append(errs, fmt.Errorf("replay.numthreads must be at least 1, was %d", config.Replay.NumThreads))
	}
	if _, err := config.CustomMetricLabels(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// CustomMetricLabels returns the custom labels as a map of label name to the command that produces its value.
func (config *Configuration) CustomMetricLabels() (map[string]string, error) {
	labels := make(map[string]string, len(config.Metrics.CustomLabel))
	for _, label := range config.Metrics.CustomLabel {
		name, command, found := strings.Cut(label, ":")
		if !found || name == "" || command == "" {
			return nil, fmt.Errorf("invalid metrics.customlabel %q, should be name:command", label)
		}
		labels[strings.TrimSpace(name)] = strings.TrimSpace(command)
	}
	return labels, nil
}

// ApplyOverrides applies a set of overrides to the config.
// The keys of the given map are dot notation for the config setting.
func (config *Configuration) ApplyOverrides(overrides map[string]string) error {
	match := func(s1 string) func(string) bool {
		return func(s2 string) bool {
			return strings.ToLower(s2) == s1
		}
	}
	elem := reflect.ValueOf(config).Elem()
	for k, v := range overrides {
		split := strings.Split(strings.ToLower(k), ".")
		if len(split) != 2 {
			return fmt.Errorf("Bad option format: %s", k)
		}
		field := elem.FieldByNameFunc(match(split[0]))
		if !field.IsValid() {
			return fmt.Errorf("Unknown config field: %s%s", split[0], cli.DidYouMean(split[0], fieldNames(elem), 4))
		} else if field.Kind() != reflect.Struct {
			return fmt.Errorf("Unsettable config field: %s", split[0])
		}
		section := field
		field = field.FieldByNameFunc(match(split[1]))
		if !field.IsValid() {
			return fmt.Errorf("Unknown config field: %s%s", split[1], cli.DidYouMean(split[1], fieldNames(section), 4))
		}
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("Invalid value for %s: %s", k, err)
			}
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(v)
		case reflect.Bool:
			v = strings.ToLower(v)
			// Mimics the set of truthy things gcfg accepts in our config file.
			field.SetBool(v == "true" || v == "yes" || v == "on" || v == "1")
		case reflect.Int:
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("Invalid value for an integer field: %s", v)
			}
			field.SetInt(int64(i))
		case reflect.Slice:
			// We only have to worry about slices of strings. Comma-separated values are accepted.
			field.Set(reflect.ValueOf(strings.Split(v, ",")))
		default:
			return fmt.Errorf("Can't override config field %s", k)
		}
	}
	return config.Validate()
}

// fieldNames returns the names of the fields of a struct, as they're written in the config file.
func fieldNames(v reflect.Value) []string {
	t := v.Type()
	ret := make([]string, t.NumField())
	for i := range ret {
		ret[i] = strings.ToLower(t.Field(i).Name)
	}
	return ret
}
