// cmd/towerwatch/main.go

// towerwatch is a terminal dashboard for a running towerview server: it
// polls /api/states and shows the tracked aircraft as a live table.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/predict"
	"github.com/towercab/towerview/pkg/server"
)

var (
	addr     = flag.String("addr", fmt.Sprintf("localhost:%d", server.DefaultPort), "towerview server address")
	interval = flag.Duration("interval", time.Second, "how often to poll the server")
)

// snapshot mirrors the /api/states response body.
type snapshot struct {
	Time     time.Time
	Aircraft map[string]*predict.PredictedState
}

type sortMode int

const (
	sortByCallsign sortMode = iota
	sortByAltitude
	sortByGroundspeed
	numSortModes
)

func (s sortMode) String() string {
	return []string{"callsign", "altitude", "groundspeed"}[s]
}

// AppState holds the runtime state of the application. The poller
// goroutine writes the snapshot fields under mu; the UI goroutine reads
// them there.
type AppState struct {
	mu        sync.Mutex
	snap      snapshot
	fetchErr  error
	fetchedAt time.Time
	paused    bool

	// UI-goroutine only.
	sort   sortMode
	scroll int
}

func main() {
	flag.Parse()

	url := "http://" + *addr + "/api/states"
	client := &http.Client{Timeout: 5 * time.Second}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))

	app := &AppState{}
	done := make(chan struct{})

	// Poll on a separate goroutine and wake the event loop with an
	// interrupt event whenever there is something new to draw.
	go func() {
		poll := func() {
			snap, err := fetchStates(client, url)

			app.mu.Lock()
			app.fetchErr = err
			if err == nil {
				app.snap = snap
				app.fetchedAt = time.Now()
			}
			app.mu.Unlock()

			screen.PostEvent(tcell.NewEventInterrupt(nil))
		}
		poll()

		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				app.mu.Lock()
				paused := app.paused
				app.mu.Unlock()
				if !paused {
					poll()
				}
			}
		}
	}()

	for {
		render(screen, app)
		screen.Show()

		ev := screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventResize:
			screen.Sync()

		case *tcell.EventInterrupt:
			// New data; fall through to render.

		case *tcell.EventKey:
			if quit := handleKey(ev, app, screen); quit {
				close(done)
				return
			}
		}
	}
}

// handleKey processes one key event and reports whether to quit.
func handleKey(ev *tcell.EventKey, app *AppState, screen tcell.Screen) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true

	case tcell.KeyUp:
		app.scroll = max(app.scroll-1, 0)

	case tcell.KeyDown:
		app.scroll++

	case tcell.KeyPgUp:
		_, height := screen.Size()
		app.scroll = max(app.scroll-(height-4), 0)

	case tcell.KeyPgDn:
		_, height := screen.Size()
		app.scroll += height - 4

	case tcell.KeyHome:
		app.scroll = 0

	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 's':
			app.sort = (app.sort + 1) % numSortModes
			app.scroll = 0
		case 'p':
			app.mu.Lock()
			app.paused = !app.paused
			app.mu.Unlock()
		}
	}
	return false
}

func fetchStates(client *http.Client, url string) (snapshot, error) {
	var snap snapshot

	resp, err := client.Get(url)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("%s: returned status %d", url, resp.StatusCode)
	}
	return snap, json.NewDecoder(resp.Body).Decode(&snap)
}

func render(screen tcell.Screen, app *AppState) {
	screen.Clear()
	width, height := screen.Size()

	styleHeader := tcell.StyleDefault.Bold(true).Reverse(true)
	styleColumn := tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleError := tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleCoast := tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleHelp := tcell.StyleDefault.Foreground(tcell.ColorGray)

	app.mu.Lock()
	snap := app.snap
	fetchErr := app.fetchErr
	fetchedAt := app.fetchedAt
	paused := app.paused
	app.mu.Unlock()

	title := fmt.Sprintf(" towerwatch %s  %d aircraft  sort: %s ", *addr, len(snap.Aircraft), app.sort)
	status := ""
	if !fetchedAt.IsZero() {
		status = fmt.Sprintf(" updated %s ago ", time.Since(fetchedAt).Round(time.Second/10))
	}
	if paused {
		status = " PAUSED " + status
	}
	drawText(screen, 0, 0, width, styleHeader, title+strings.Repeat(" ", max(0, width-len(title)-len(status)))+status)

	if fetchErr != nil {
		drawText(screen, 0, 1, width, styleError, fmt.Sprintf(" %v", fetchErr))
	}

	header := fmt.Sprintf(" %-9s %-7s %7s %4s %6s %7s %6s %6s %8s  %s",
		"CALLSIGN", "TYPE", "ALT", "GS", "HDG", "V/S", "PITCH", "ROLL", "FREQ", "FLAGS")
	drawText(screen, 0, 2, width, styleColumn, header)

	rows := sortedStates(snap, app.sort)

	// Clamp the scroll so the last page still fills the screen where
	// possible.
	maxRows := height - 4
	app.scroll = max(0, min(app.scroll, len(rows)-maxRows))

	y := 3
	for i := app.scroll; i < len(rows) && y < height-1; i++ {
		st := rows[i]

		actype := st.AircraftType
		if st.Heavy {
			actype += "/H"
		}

		var flags []string
		if st.OnGround {
			flags = append(flags, "GND")
		}
		if st.Coasting {
			flags = append(flags, "COAST")
		}

		line := fmt.Sprintf(" %-9s %-7s %7.0f %4.0f %3.0f°%-2s %7.0f %6.1f %6.1f %8.3f  %s",
			st.Callsign, actype, st.Altitude, st.Groundspeed,
			st.Heading, math.ShortCompass(st.Heading),
			st.VerticalRate, st.Pitch, st.Roll, st.Frequency,
			strings.Join(flags, " "))

		style := tcell.StyleDefault
		if st.Coasting {
			style = styleCoast
		}
		drawText(screen, 0, y, width, style, line)
		y++
	}

	help := " [q]=Quit  [s]=Sort  [p]=Pause  [↑↓]=Scroll "
	drawText(screen, 0, height-1, width, styleHelp, help)
}

func sortedStates(snap snapshot, mode sortMode) []*predict.PredictedState {
	rows := make([]*predict.PredictedState, 0, len(snap.Aircraft))
	for _, st := range snap.Aircraft {
		rows = append(rows, st)
	}

	slices.SortFunc(rows, func(a, b *predict.PredictedState) int {
		switch mode {
		case sortByAltitude:
			if a.Altitude != b.Altitude {
				return int(b.Altitude - a.Altitude)
			}
		case sortByGroundspeed:
			if a.Groundspeed != b.Groundspeed {
				return int(b.Groundspeed - a.Groundspeed)
			}
		}
		return strings.Compare(a.Callsign, b.Callsign)
	})
	return rows
}

// drawText draws a string at the given position.
func drawText(screen tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	col := 0
	for _, r := range text {
		if col >= maxWidth {
			break
		}
		screen.SetContent(x+col, y, r, nil, style)
		col++
	}
	// Fill remaining space
	for col < maxWidth {
		screen.SetContent(x+col, y, ' ', nil, style)
		col++
	}
}
