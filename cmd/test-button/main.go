// Command test-button is a manual test for the button gesture classifier.
// Run it, then tap, double-tap or hold Ctrl+Shift+B to see events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-button [--tick 40ms] [--debounce 20ms] [--keys ctrl,shift,b]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/button"
	"github.com/chaz8081/pendant/internal/hotkey"
	"github.com/chaz8081/pendant/internal/periodic"
)

var (
	pressColor   = color.New(color.FgHiBlack)
	releaseColor = color.New(color.FgWhite)
	tapColor     = color.New(color.FgGreen, color.Bold)
	doubleColor  = color.New(color.FgCyan, color.Bold)
	longColor    = color.New(color.FgMagenta, color.Bold)
)

func main() {
	tick := flag.Duration("tick", 40*time.Millisecond, "sampler period")
	debounce := flag.Duration("debounce", 20*time.Millisecond, "debounce window")
	keys := flag.String("keys", "ctrl,shift,b", "comma-separated hotkey combo")
	flag.Parse()

	combo := strings.Split(*keys, ",")
	fmt.Printf("Listening for %s (tick %s, debounce %s)...\n", strings.Join(combo, "+"), *tick, *debounce)
	fmt.Println("Press Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	deb := button.NewDebouncer(*debounce)
	fsm := button.NewFSM(button.DefaultThresholds())
	sampler := button.NewSampler(deb, fsm, func(e button.Event) {
		printEvent(time.Since(start), e)
	})

	sched := periodic.New(ctx, periodic.Task{Name: "button-sampler", Interval: *tick, Run: sampler.Tick})
	sched.Start()

	listener := hotkey.NewListener(combo, deb.Edge)
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Blocks until stopped
	listener.Start()
	sched.Wait()
	fmt.Printf("Done. %d edges ignored by the debouncer.\n", deb.Ignored())
}

func printEvent(at time.Duration, e button.Event) {
	stamp := fmt.Sprintf("[%8s]", at.Round(time.Millisecond))
	switch e {
	case protocol.ButtonPress:
		pressColor.Printf("%s  v press\n", stamp)
	case protocol.ButtonRelease:
		releaseColor.Printf("%s  ^ release\n", stamp)
	case protocol.ButtonSingleTap:
		tapColor.Printf("%s >>> SINGLE TAP\n", stamp)
	case protocol.ButtonDoubleTap:
		doubleColor.Printf("%s >>> DOUBLE TAP\n", stamp)
	case protocol.ButtonLongTap:
		longColor.Printf("%s >>> LONG TAP\n", stamp)
	default:
		fmt.Printf("%s ??? %s\n", stamp, e)
	}
}
