// Package report renders pipeline metrics for operators.
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"aircraft-mon/internal/pipeline"
)

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorCyan  = "\x1b[36m"
	colorGray  = "\x1b[90m"
)

// TextReporter prints metrics reports line by line.
type TextReporter struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewTextReporter writes to out, coloured when out is a terminal.
func NewTextReporter(out io.Writer) *TextReporter {
	return &TextReporter{out: out, color: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Report implements pipeline.Reporter.
func (r *TextReporter) Report(s pipeline.Snapshot) {
	var buf bytes.Buffer
	_ = s.WriteText(&buf)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.color {
		r.out.Write(buf.Bytes())
		return
	}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		fmt.Fprintln(r.out, colorize(sc.Text()))
	}
}

// colorize highlights the "Metrics:" prefix and the value after the last colon.
func colorize(line string) string {
	label, value, ok := strings.Cut(line, ": ")
	if !ok {
		return line
	}
	i := strings.LastIndex(value, ": ")
	if i < 0 {
		return colorGray + label + ":" + colorReset + " " + value
	}
	return colorGray + label + ":" + colorReset + " " + value[:i+2] + colorCyan + value[i+2:] + colorReset
}
