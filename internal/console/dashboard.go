package console

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/tic"
)

// maxLogLines bounds the command-output scrollback kept for display.
const maxLogLines = 8

// Dashboard is a headless server's live status view: a player table
// plus a command input line, grounded on the teacher's
// render.TcellRenderer (internal/render/tcell.go) — same screen
// lifecycle and event-polling goroutine, repurposed from rendering
// gameplay tiles to rendering server admin state.
type Dashboard struct {
	screen  tcell.Screen
	eventCh chan tcell.Event
	quitCh  chan struct{}

	dispatcher *Dispatcher
	input      []rune
	log        []string
}

// NewDashboard builds a dashboard that dispatches typed commands
// through dispatcher.
func NewDashboard(dispatcher *Dispatcher) *Dashboard {
	return &Dashboard{
		dispatcher: dispatcher,
		eventCh:    make(chan tcell.Event, 32),
		quitCh:     make(chan struct{}),
	}
}

// Init opens the terminal screen and starts the event-polling
// goroutine.
func (d *Dashboard) Init() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()
	d.screen = screen
	go d.pollEvents()
	return nil
}

func (d *Dashboard) pollEvents() {
	for {
		select {
		case <-d.quitCh:
			return
		default:
			ev := d.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case d.eventCh <- ev:
			default:
				// Drop if the tic loop hasn't pumped the last frame yet.
			}
		}
	}
}

// Close tears down the screen.
func (d *Dashboard) Close() {
	close(d.quitCh)
	if d.screen != nil {
		d.screen.Fini()
	}
}

// PumpInput drains every queued key event without blocking, the same
// non-blocking contract as transport.PollNonBlocking, so a dashboard
// tick never stalls the server's tic loop.
func (d *Dashboard) PumpInput() {
	for {
		select {
		case ev := <-d.eventCh:
			d.handleEvent(ev)
		default:
			return
		}
	}
}

func (d *Dashboard) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		d.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEnter:
			line := strings.TrimSpace(string(d.input))
			d.input = d.input[:0]
			if line == "" {
				return
			}
			d.appendLog("> " + line)
			if out := d.dispatcher.Run(line); out != "" {
				d.appendLog(out)
			}
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if len(d.input) > 0 {
				d.input = d.input[:len(d.input)-1]
			}
		case tcell.KeyRune:
			d.input = append(d.input, ev.Rune())
		}
	}
}

func (d *Dashboard) appendLog(line string) {
	d.log = append(d.log, line)
	if len(d.log) > maxLogLines {
		d.log = d.log[len(d.log)-maxLogLines:]
	}
}

// Render draws one frame: the player table, recent command output, and
// the input line.
func (d *Dashboard) Render(l *tic.Loop) {
	if d.screen == nil {
		return
	}
	d.screen.Clear()
	_, h := d.screen.Size()

	d.drawText(0, 0, fmt.Sprintf("world_index=%d", l.WorldIndex()))

	row := 2
	d.drawText(0, row, fmt.Sprintf("%-4s %-16s %6s %5s %-9s", "idx", "name", "rtt_ms", "loss", "state"))
	row++
	l.Table().ForEach(func(c *clientstate.Client) {
		d.drawText(0, row, fmt.Sprintf("%-4d %-16s %6d %4d%% %-9s", c.Index, c.Name, c.RTTMillis, c.LossPercent, queueStateName(c)))
		row++
	})

	logTop := h - 2 - len(d.log)
	if logTop < row+1 {
		logTop = row + 1
	}
	for i, line := range d.log {
		d.drawText(0, logTop+i, line)
	}

	d.drawText(0, h-1, "> "+string(d.input))
	d.screen.Show()
}

func queueStateName(c *clientstate.Client) string {
	if c.Spectating {
		return "spectator"
	}
	switch c.QueueLevel {
	case clientstate.QueuePlaying:
		return "playing"
	case clientstate.QueueCanJoin:
		return "can_join"
	case clientstate.QueueWaiting:
		return "waiting"
	default:
		return "-"
	}
}

func (d *Dashboard) drawText(x, y int, text string) {
	for i, ch := range text {
		d.screen.SetContent(x+i, y, ch, nil, tcell.StyleDefault)
	}
}
