package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/secheckup/internal/checker"
)

type progressPrinter struct {
	total    int
	name     string
	out      io.Writer
	mu       sync.Mutex
	secure   int
	warning  int
	danger   int
	other    int
	duration float64 // milliseconds
	updates  chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(out io.Writer, total int, name string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		total:   total,
		name:    name,
		out:     out,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop()
}

// Observe records one finished probe.
func (p *progressPrinter) Observe(v checker.Verdict) {
	p.mu.Lock()
	switch v.Status {
	case checker.StatusSecure:
		p.secure++
	case checker.StatusWarning:
		p.warning++
	case checker.StatusDanger:
		p.danger++
	default:
		p.other++
	}
	p.duration += v.DurationMS
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		<-p.stopped
		fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 80))
		p.print()
		fmt.Fprintln(p.out)
	})
}

func (p *progressPrinter) loop() {
	defer close(p.stopped)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	secure, warning, danger, other := p.secure, p.warning, p.danger, p.other
	dur := p.duration
	p.mu.Unlock()

	completed := secure + warning + danger + other
	total := p.total
	if completed > total {
		total = completed
	}

	percent := (float64(completed) / float64(total)) * 100
	avg := 0.0
	if completed > 0 {
		avg = dur / float64(completed) / 1000
	}

	fmt.Fprintf(p.out, "\r[%s] Progress: %d/%d (%.1f%%) Secure:%d Warning:%d Danger:%d Avg:%.2fs",
		p.name, completed, total, percent, secure, warning, danger, avg)
}
