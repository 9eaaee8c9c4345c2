package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/chip8"
	"gochip8/pkg/config"
	"gochip8/pkg/display"
	"gochip8/pkg/driver"
)

// ansiRenderer repaints the whole grid on every frame, using the cursor
// home escape so successive frames overdraw in place.
type ansiRenderer struct {
	out *bufio.Writer
}

func (r *ansiRenderer) Render(pixels []display.Pixel) error {
	lit := make(map[display.Pixel]struct{}, len(pixels))
	for _, p := range pixels {
		lit[p] = struct{}{}
	}

	fmt.Fprint(r.out, "\x1b[H")
	for y := uint8(0); y < display.Height; y++ {
		for x := uint8(0); x < display.Width; x++ {
			if _, ok := lit[display.Pixel{X: x, Y: y}]; ok {
				fmt.Fprint(r.out, "█")
			} else {
				fmt.Fprint(r.out, "·")
			}
		}
		fmt.Fprintln(r.out)
	}
	return r.out.Flush()
}

// keyHold is how long a typed character counts as pressed. Terminal
// input is line buffered and carries no release events, so a tap has to
// span a few clock ticks for the program to observe it.
const keyHold = 150 * time.Millisecond

// readKeys forwards typed characters as key taps. An empty line (or EOF)
// quits; every keypad character stays bindable that way.
func readKeys(events chan<- driver.Event, bindings map[rune]uint8) {
	defer close(events)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			return
		}
		for _, r := range text {
			digit, ok := bindings[unicode.ToUpper(r)]
			if !ok {
				continue
			}
			events <- driver.Event{Key: digit, Down: true}
			time.Sleep(keyHold)
			events <- driver.Event{Key: digit, Down: false}
		}
	}
}

func run(logger *log.Logger, cfgFile, romFile string) error {
	ctx := app.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	bindings, err := cfg.KeypadDigits()
	if err != nil {
		return fmt.Errorf("reading keypad config: %w", err)
	}

	rom, err := os.Open(romFile)
	if err != nil {
		return fmt.Errorf("opening ROM: %w", err)
	}
	defer func() {
		_ = rom.Close()
	}()

	console, err := chip8.New(rom)
	if err != nil {
		return fmt.Errorf("loading ROM: %w", err)
	}
	console.SetLogger(logger)

	renderer := &ansiRenderer{out: bufio.NewWriter(os.Stdout)}
	d := driver.New(console, renderer, cfg.ClockHz, logger)
	go readKeys(d.Events, bindings)

	fmt.Print("\x1b[2J") // clear once, frames overdraw from then on
	return d.Run(ctx)
}

func main() {
	cfgFile := flag.String("config", config.DefaultFile, "configuration file path")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logCfg := log.DefaultConfig()
	if *debug {
		logCfg.Level = log.DebugLevel
	}
	logger := log.NewWithConfig(logCfg)

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <rom file>\n", os.Args[0])
		flag.Usage()
		os.Exit(2)
	}

	if err := run(logger, *cfgFile, flag.Arg(0)); err != nil {
		logger.Fatal("emulator stopped", log.Err(err))
	}
}
