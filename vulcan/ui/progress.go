package ui

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// ProgressBars renders one tracker per build job, or nothing when hidden
// (non-interactive runs keep the plain log output readable).
type ProgressBars struct {
	pw   progress.Writer
	hide bool
}

func NewProgressBars(out io.Writer, hide bool) *ProgressBars {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(25)
	pw.SetMessageLength(60)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = false

	return &ProgressBars{pw: pw, hide: hide}
}

func (p *ProgressBars) Hidden() bool {
	return p.hide
}

// Job registers a tracker for one build job.
func (p *ProgressBars) Job(message string) *progress.Tracker {
	t := &progress.Tracker{
		Message: message,
		Total:   100,
	}
	if !p.hide {
		p.pw.AppendTracker(t)
	}
	return t
}

func (p *ProgressBars) Start() {
	if !p.hide {
		go p.pw.Render()
	}
}

func (p *ProgressBars) Stop() {
	if !p.hide {
		// Give the renderer one last frame before stopping.
		for p.pw.IsRenderInProgress() && p.pw.LengthActive() > 0 {
			time.Sleep(50 * time.Millisecond)
		}
		p.pw.Stop()
	}
}
