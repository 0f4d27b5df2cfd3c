package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/width"
)

const lineWidth = 46

// displayWidth counts terminal columns: wide and fullwidth runes take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

type console struct {
	w io.Writer
}

func (c console) banner(version string) {
	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, "\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Fprintf(c.w, "\033[36;1m  │\033[0m%s\033[36;1m│\033[0m\n", center("coreloop "+version, 43))
	fmt.Fprintln(c.w, "\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Fprintln(c.w)
}

func (c console) section(title string) {
	fill := max(lineWidth-displayWidth(title)-1, 3)
	fmt.Fprintf(c.w, "  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", fill))
}

func (c console) stat(label string, count uint64) {
	num := humanize.Comma(int64(count))
	dots := max(42-displayWidth(label)-len(num), 3)
	fmt.Fprintf(c.w, "  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dots), num)
}

func (c console) ok(msg string) {
	fmt.Fprintf(c.w, "  \033[32m✓\033[0m %s\n", msg)
}

func (c console) ready(msg string) {
	fmt.Fprintf(c.w, "  \033[32m▶\033[0m %s\n", msg)
}

func center(s string, cols int) string {
	pad := max(cols-displayWidth(s), 0)
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
