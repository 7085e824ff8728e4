// Package envconfig reads the environment variables that configure the
// execution layer. Every getter re-reads the environment, so tests can use
// t.Setenv.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of surrounding quotes and
// whitespace.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel returns the slog level.
// Configurable via ACCEL_DEBUG: 0/false = INFO (default), 1/true = DEBUG,
// 2 = TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ACCEL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// Verbosity returns the diagnostic verbosity name from ACCEL_VERBOSITY
// (silent, summarize, verbose, debug). Empty means unset.
func Verbosity() string {
	return strings.ToLower(Var("ACCEL_VERBOSITY"))
}

// RecoverableCodes returns the backend code names that are downgraded to
// recoverable failures while tuning, from the comma separated
// ACCEL_RECOVERABLE_CODES. Nil means unset.
func RecoverableCodes() []string {
	s := Var("ACCEL_RECOVERABLE_CODES")
	if s == "" {
		return nil
	}
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

var (
	// AsyncReduction enables the device-resident reduction result path.
	AsyncReduction = Bool("ACCEL_ASYNC_REDUCTION")
	// Tuning enables launch parameter search for uncached operations.
	Tuning = BoolWithDefault("ACCEL_ENABLE_TUNING")
	// APIProfile enables per-call timing of runtime API calls.
	APIProfile = Bool("ACCEL_API_PROFILE")
	// TuneCache is the path of the tune cache file.
	TuneCache = String("ACCEL_TUNE_CACHE")
	// Backend selects the backend by name.
	Backend = String("ACCEL_BACKEND")
	// Workers caps the number of goroutines a CPU launch uses; 0 means all cores.
	Workers = Uint("ACCEL_WORKERS", 0)
)

// BoolWithDefault returns a getter for a boolean with a default value.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a getter for a string.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a getter for a uint with a default value.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar describes a configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ACCEL_DEBUG":             {"ACCEL_DEBUG", LogLevel(), "Show additional debug information (e.g. ACCEL_DEBUG=1)"},
		"ACCEL_VERBOSITY":         {"ACCEL_VERBOSITY", Verbosity(), "Diagnostic verbosity: silent, summarize, verbose, debug"},
		"ACCEL_ASYNC_REDUCTION":   {"ACCEL_ASYNC_REDUCTION", AsyncReduction(), "Accumulate reductions in device memory"},
		"ACCEL_ENABLE_TUNING":     {"ACCEL_ENABLE_TUNING", Tuning(true), "Search launch parameters for uncached operations"},
		"ACCEL_RECOVERABLE_CODES": {"ACCEL_RECOVERABLE_CODES", RecoverableCodes(), "Backend codes treated as recoverable while tuning"},
		"ACCEL_API_PROFILE":       {"ACCEL_API_PROFILE", APIProfile(), "Time runtime API calls"},
		"ACCEL_TUNE_CACHE":        {"ACCEL_TUNE_CACHE", TuneCache(), "Path of the tune cache file"},
		"ACCEL_BACKEND":           {"ACCEL_BACKEND", Backend(), "Backend name (default: first registered)"},
		"ACCEL_WORKERS":           {"ACCEL_WORKERS", Workers(), "Worker goroutines per CPU launch (0 = all cores)"},
	}
}

// Values returns every configuration variable formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
