package parser

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

var (
	debug       = false
	LZNT1_debug = false

	ntfs_debug      bool
	ntfs_debug_once sync.Once
)

// Dump an arbitrary object to stdout.
func Debug(arg interface{}) {
	spew.Dump(arg)
}

// Same as Debug() but returns the dump instead.
func DebugDump(arg interface{}) string {
	return spew.Sdump(arg)
}

type Debugger interface {
	DebugString() string
}

// Indent the DebugString() of the object. Returns "" when debugging
// is disabled.
func DebugString(arg interface{}, indent string) string {
	debugger, ok := arg.(Debugger)
	if !debug || !ok {
		return ""
	}

	lines := strings.Split(debugger.DebugString(), "\n")
	for idx, line := range lines {
		lines[idx] = indent + line
	}
	return strings.Join(lines, "\n")
}

func Printf(fmt_str string, args ...interface{}) {
	if debug {
		fmt.Printf(fmt_str, args...)
	}
}

func LZNT1Printf(fmt_str string, args ...interface{}) {
	if LZNT1_debug {
		fmt.Printf(fmt_str, args...)
	}
}

func debugHexDump(in []byte) string {
	if !LZNT1_debug {
		return ""
	}
	return hex.Dump(in)
}

// DebugPrint is enabled by setting the NTFS_DEBUG environment
// variable.
func DebugPrint(fmt_str string, v ...interface{}) {
	ntfs_debug_once.Do(func() {
		_, ntfs_debug = os.LookupEnv("NTFS_DEBUG")
	})

	if ntfs_debug {
		fmt.Printf(fmt_str, v...)
	}
}

// Turn on debugging from code (e.g. the --debug flag).
func SetDebug() {
	ntfs_debug_once.Do(func() {})
	ntfs_debug = true
}
