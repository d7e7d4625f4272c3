package colors

// Color is an ANSI SGR code
type Color int

// Source: https://github.com/rs/zerolog/blob/4fff5db29c3403bc26dee9895e12a108aacc0203/console.go
const (
	// RED is the ANSI code for red
	RED Color = iota + 31
	// GREEN is the ANSI code for green
	GREEN
	// YELLOW is the ANSI code for yellow
	YELLOW
	// BLUE is the ANSI code for blue
	BLUE
	// MAGENTA is the ANSI code for magenta
	MAGENTA
	// CYAN is the ANSI code for cyan
	CYAN
	// BOLD is the ANSI code for bold text
	BOLD Color = 1
)

// LEFT_ARROW is the glyph used in place of the "info" level label on console output
const LEFT_ARROW = "⇾"
