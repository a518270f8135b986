// Package color provides terminal color output for the bit CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	once    sync.Once
	enabled = true
)

// Init decides once whether to colorize, from NO_COLOR, TERM=dumb and the
// --no-color flag.
func Init(noColorFlag bool) {
	once.Do(func() {
		_, noColor := os.LookupEnv("NO_COLOR")
		set(!(noColor || os.Getenv("TERM") == "dumb" || noColorFlag))
	})
}

func set(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Disable turns off color output.
func Disable() { Init(false); set(false) }

// Enable turns on color output.
func Enable() { Init(false); set(true) }

// ANSI codes.
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	DimCode = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + Reset
}

// Success formats a success message in green.
func Success(s string) string { return wrap(Green, s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return Success(fmt.Sprintf(format, args...)) }

// Error formats an error message in red.
func Error(s string) string { return wrap(Red, s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return Error(fmt.Sprintf(format, args...)) }

// Warning formats a warning in yellow.
func Warning(s string) string { return wrap(Yellow, s) }

// Warningf formats a warning with printf-style arguments.
func Warningf(format string, args ...any) string { return Warning(fmt.Sprintf(format, args...)) }

// Header formats a header in bold.
func Header(s string) string { return wrap(Bold, s) }

// Dim formats secondary information.
func Dim(s string) string { return wrap(DimCode, s) }

// ID formats commit, action and record ids.
func ID(s string) string { return wrap(Cyan, s) }

// Status colors a document status: ok green, conflict red.
func Status(s string) string {
	if s == "conflict" {
		return Error(s)
	}
	return Success(s)
}

// Marker colors a history marker: R (signed) green, L (committed) blue,
// S (staging) yellow.
func Marker(m string) string {
	switch m {
	case "R":
		return wrap(Green, "["+m+"]")
	case "L":
		return wrap(Blue, "["+m+"]")
	default:
		return wrap(Yellow, "["+m+"]")
	}
}
