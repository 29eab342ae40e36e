package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// A one-line terminal progress bar for `shapeq run`.
// Shows: [==========>.........] 2/4 | 3.001s elapsed

const barWidth = 30 // Characters for the progress bar

type progressBar struct {
	out     io.Writer
	started time.Time
	total   int
}

func newProgressBar(out io.Writer, started time.Time, total int) *progressBar {
	return &progressBar{out: out, started: started, total: total}
}

// render redraws the bar for done terminal tasks at now.
func (p *progressBar) render(done int, now time.Time) {
	clearLine(p.out)
	fmt.Fprintf(p.out, "  %s %d/%d | %s elapsed", bar(done, p.total), done, p.total,
		strings.TrimSpace(formatElapsed(now.Sub(p.started))))
}

// finish clears the bar so the next line starts clean.
func (p *progressBar) finish() {
	clearLine(p.out)
}

// bar builds [=======>............] for done out of total.
func bar(done, total int) string {
	if total <= 0 {
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
	filled := done * barWidth / total
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	default:
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
}

func clearLine(out io.Writer) {
	fmt.Fprintf(out, "\r\033[K")
}
