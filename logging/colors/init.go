package colors

// disabled turns every ColorFunc into a plain formatter.
var disabled bool

// DisableColor turns off ANSI coloring for all subsequent output
func DisableColor() {
	disabled = true
}

func init() {
	EnableColor()
}
