package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/font/basicfont"

	"gochip8/pkg/chip8"
	"gochip8/pkg/config"
	"gochip8/pkg/display"
)

// statusHeight is the pixel height of the text bar below the screen.
const statusHeight = 16

// refreshRate is ebiten's Update frequency; the configured clock is
// spread across it.
const refreshRate = 60

type Game struct {
	console *chip8.Console

	romName      string
	stepsPerTick int
	scale        int
	keys         map[ebiten.Key]uint8
	on, off      color.RGBA

	frame  *ebiten.Image // reused 64×32 canvas
	pixels []display.Pixel
	dirty  bool
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	for key, digit := range g.keys {
		if inpututil.IsKeyJustPressed(key) {
			g.console.KeyPress(digit)
		}
		if inpututil.IsKeyJustReleased(key) {
			g.console.KeyRelease(digit)
		}
	}

	for range g.stepsPerTick {
		signal, err := g.console.Step()
		if err != nil {
			return fmt.Errorf("stepping program: %w", err)
		}

		switch signal.Kind {
		case chip8.SignalDraw:
			g.pixels = signal.Pixels
			g.dirty = true

		case chip8.SignalWaitKey:
			// Blocked on input, no point burning the rest of the tick.
			return nil

		case chip8.SignalExit:
			return ebiten.Termination
		}
	}

	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.frame == nil {
		g.frame = ebiten.NewImage(display.Width, display.Height)
	}

	if g.dirty {
		g.frame.WritePixels(g.frameRGBA())
		g.dirty = false
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.frame, op)

	status := g.romName
	if g.console.SoundTimer() > 0 {
		status += "  [beep]"
	}
	text.Draw(screen, status, basicfont.Face7x13, 4, display.Height*g.scale+12, color.White)
}

// frameRGBA flattens the lit pixel set into a full RGBA bitmap.
func (g *Game) frameRGBA() []byte {
	buf := make([]byte, display.Width*display.Height*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i] = g.off.R
		buf[i+1] = g.off.G
		buf[i+2] = g.off.B
		buf[i+3] = 0xFF
	}
	for _, p := range g.pixels {
		i := (int(p.Y)*display.Width + int(p.X)) * 4
		buf[i] = g.on.R
		buf[i+1] = g.on.G
		buf[i+2] = g.on.B
	}
	return buf
}

func (g *Game) Layout(_, _ int) (int, int) {
	return display.Width * g.scale, display.Height*g.scale + statusHeight
}

// ebitenKeys translates the configured rune bindings into ebiten key codes.
func ebitenKeys(bindings map[rune]uint8) (map[ebiten.Key]uint8, error) {
	keys := make(map[ebiten.Key]uint8, len(bindings))
	for r, digit := range bindings {
		switch {
		case r >= '0' && r <= '9':
			keys[ebiten.Key0+ebiten.Key(r-'0')] = digit
		case r >= 'A' && r <= 'Z':
			keys[ebiten.KeyA+ebiten.Key(r-'A')] = digit
		default:
			return nil, fmt.Errorf("key %q is not bindable", r)
		}
	}
	return keys, nil
}

func run(logger *log.Logger, cfgFile, romFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	bindings, err := cfg.KeypadDigits()
	if err != nil {
		return fmt.Errorf("reading keypad config: %w", err)
	}
	keys, err := ebitenKeys(bindings)
	if err != nil {
		return fmt.Errorf("reading keypad config: %w", err)
	}

	onR, onG, onB, err := config.ParseColor(cfg.OnColor)
	if err != nil {
		return fmt.Errorf("parsing on-color: %w", err)
	}
	offR, offG, offB, err := config.ParseColor(cfg.OffColor)
	if err != nil {
		return fmt.Errorf("parsing off-color: %w", err)
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

	stepsPerTick := cfg.ClockHz / refreshRate
	if stepsPerTick < 1 {
		stepsPerTick = 1
	}
	logger.Debug("starting",
		log.String("rom", romFile),
		log.Int("clock-hz", cfg.ClockHz),
		log.Int("steps-per-tick", stepsPerTick),
	)

	game := &Game{
		console:      console,
		romName:      filepath.Base(romFile),
		stepsPerTick: stepsPerTick,
		scale:        cfg.Scale,
		keys:         keys,
		on:           color.RGBA{R: onR, G: onG, B: onB, A: 0xFF},
		off:          color.RGBA{R: offR, G: offG, B: offB, A: 0xFF},
	}

	ebiten.SetWindowSize(display.Width*cfg.Scale, display.Height*cfg.Scale+statusHeight)
	ebiten.SetWindowTitle("CHIP-8 - " + game.romName)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
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
