//go:build windows

package colors

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// vtEnabled records whether the attached console processes ANSI escape sequences.
var vtEnabled bool

// EnableColor queries the console mode of stdout and turns on virtual terminal processing when the console allows it.
func EnableColor() {
	handle := windows.Handle(os.Stdout.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err != nil {
		vtEnabled = false
		return
	}
	if mode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
		vtEnabled = true
		return
	}
	vtEnabled = windows.SetConsoleMode(handle, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
}

// Colorize returns the string s wrapped in ANSI code c when the console supports it
func Colorize(s any, c Color) string {
	if disabled || !vtEnabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
