// Package cprint is the console/warning sink used by the merge engine's
// default collaborator callbacks. It never decides what to report; callers
// (pkg/merge and anything embedding it) choose when to call these verbs.
package cprint

import (
	"io"
	"os"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	// mu is used to synchronize writes from multiple goroutines.
	mu sync.Mutex
	// DisableOutput disables all output.
	DisableOutput bool
)

func conditionalPrintf(fn func(string, ...interface{}), format string, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(format, a...)
}

func conditionalPrintln(fn func(...interface{}), a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(a...)
}

func conditionalPrintlnCustomWriter(fn func(io.Writer, ...interface{}), w io.Writer, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(w, a...)
}

func conditionalPrintfCustomWriter(fn func(io.Writer, string, ...interface{}), w io.Writer, format string, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(w, format, a...)
}

var (
	createPrintf = color.New(color.FgGreen).PrintfFunc()
	deletePrintf = color.New(color.FgRed).PrintfFunc()
	updatePrintf = color.New(color.FgYellow).PrintfFunc()
	warnPrintf   = color.New(color.FgYellow).PrintfFunc()
	revertPrintf = color.New(color.FgBlue).PrintfFunc()

	// CreatePrintf is fmt.Printf with green as foreground color.
	CreatePrintf = func(format string, a ...interface{}) {
		conditionalPrintf(createPrintf, format, a...)
	}

	// DeletePrintf is fmt.Printf with red as foreground color.
	DeletePrintf = func(format string, a ...interface{}) {
		conditionalPrintf(deletePrintf, format, a...)
	}

	// UpdatePrintf is fmt.Printf with yellow as foreground color.
	UpdatePrintf = func(format string, a ...interface{}) {
		conditionalPrintf(updatePrintf, format, a...)
	}

	// WarnPrintf is fmt.Printf with yellow as foreground color, used for
	// compressor warnings (e.g. UnmatchedLocalSequence).
	WarnPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(warnPrintf, format, a...)
	}

	// RevertPrintf is fmt.Printf with blue as foreground color, used to
	// report a resolver-side delete revert.
	RevertPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(revertPrintf, format, a...)
	}

	createPrintln  = color.New(color.FgGreen).PrintlnFunc()
	deletePrintln  = color.New(color.FgRed).PrintlnFunc()
	updatePrintln  = color.New(color.FgYellow).PrintlnFunc()
	warnPrintln    = color.New(color.FgYellow).PrintlnFunc()
	revertPrintln  = color.New(color.FgBlue).PrintlnFunc()
	bluePrintln    = color.New(color.BgBlue).PrintlnFunc()
	updateFprintln = color.New(color.FgYellow).FprintlnFunc()
	updateFprintf  = color.New(color.FgYellow).FprintfFunc()

	// CreatePrintln is fmt.Println with green as foreground color.
	CreatePrintln = func(a ...interface{}) {
		conditionalPrintln(createPrintln, a...)
	}

	// DeletePrintln is fmt.Println with red as foreground color.
	DeletePrintln = func(a ...interface{}) {
		conditionalPrintln(deletePrintln, a...)
	}

	// UpdatePrintln is fmt.Println with yellow as foreground color.
	UpdatePrintln = func(a ...interface{}) {
		conditionalPrintln(updatePrintln, a...)
	}

	// WarnPrintln is fmt.Println with yellow as foreground color, used for
	// compressor warnings (e.g. UnmatchedLocalSequence).
	WarnPrintln = func(a ...interface{}) {
		conditionalPrintln(warnPrintln, a...)
	}

	// RevertPrintln is fmt.Println with blue as foreground color, used to
	// report a resolver-side delete revert.
	RevertPrintln = func(a ...interface{}) {
		conditionalPrintln(revertPrintln, a...)
	}

	// BluePrintLn is fmt.Println with blue as background color.
	BluePrintLn = func(a ...interface{}) {
		conditionalPrintln(bluePrintln, a...)
	}

	// UpdatePrintlnStdErr is fmt.Println with yellow as foreground color.
	// It prints to stderr, instead of stdout.
	UpdatePrintlnStdErr = func(a ...interface{}) {
		conditionalPrintlnCustomWriter(updateFprintln, os.Stderr, a...)
	}

	// UpdatePrintfStdErr is fmt.Printf with yellow as foreground color.
	// It prints to stderr, instead of stdout.
	UpdatePrintfStdErr = func(format string, a ...interface{}) {
		conditionalPrintfCustomWriter(updateFprintf, os.Stderr, format, a...)
	}
)

// AutoDisableColor turns color.NoColor on when w is not a terminal, e.g.
// stdout has been redirected to a file or a pipe. It is not called
// automatically; callers decide when output mode is settled (flag parsing,
// JSON-output mode, etc).
func AutoDisableColor(w *os.File) {
	if !term.IsTerminal(int(w.Fd())) {
		color.NoColor = true
	}
}

// Plain strips ANSI escape codes from a message produced by one of this
// package's print functions, for sinks that cannot render color (a log
// file, a structured log line).
func Plain(s string) string {
	return stripansi.Strip(s)
}
