package plugins

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	// Yellow is used for keys and titles
	Yellow = color.New(color.FgYellow).SprintFunc()
	// Bold is used for section headers
	Bold = color.New(color.Bold).SprintFunc()
	// Gray is used for secondary values
	Gray = color.New(color.FgHiBlack).SprintFunc()
)

// Field is one key and value line of a section
type Field struct {
	Key   string
	Value string
}

// PrintSection writes a titled block of fields. Fields without value are
// written as list items.
func PrintSection(w io.Writer, title string, fields ...Field) {
	fmt.Fprintf(w, "%s\n", Bold(Yellow(title)))
	for _, f := range fields {
		if f.Value == "" {
			fmt.Fprintf(w, "  %s\n", f.Key)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", Yellow(f.Key+":"), f.Value)
	}
}
