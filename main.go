package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/asm"
	"gochip8/pkg/chip8"
	"gochip8/pkg/disasm"
	"gochip8/pkg/display"
	"gochip8/pkg/driver"
)

func main() {
	inPath := flag.String("in", "", "input assembly file path")
	outPath := flag.String("out", "", "output ROM file path (default: input with .ch8 extension)")
	disasmPath := flag.String("disasm", "", "print a disassembly listing of a ROM file")
	runProgram := flag.Bool("run", false, "run the assembled ROM headless")
	runROMPath := flag.String("run-rom", "", "run an existing ROM file headless")
	clockHz := flag.Int("hz", 500, "clock speed for headless runs")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logCfg := log.DefaultConfig()
	if *debug {
		logCfg.Level = log.DebugLevel
	}
	logger := log.NewWithConfig(logCfg)

	if *runProgram && *runROMPath != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -run-rom, not both")
		os.Exit(2)
	}

	assembledOutput := ""
	if *inPath != "" {
		source, err := os.ReadFile(*inPath)
		if err != nil {
			logger.Fatal("reading input file", log.String("file", *inPath), log.Err(err))
		}

		rom, err := asm.Assemble(string(source))
		if err != nil {
			logger.Fatal("assembly failed", log.String("file", *inPath), log.Err(err))
		}

		output := *outPath
		if output == "" {
			output = defaultOutputPath(*inPath)
		}
		if err := os.WriteFile(output, rom, 0o644); err != nil {
			logger.Fatal("writing ROM file", log.String("file", output), log.Err(err))
		}

		fmt.Printf("assembled %d bytes -> %s\n", len(rom), output)
		assembledOutput = output
	}

	if *disasmPath != "" {
		rom, err := os.ReadFile(*disasmPath)
		if err != nil {
			logger.Fatal("reading ROM file", log.String("file", *disasmPath), log.Err(err))
		}
		fmt.Print(disasm.New(logger).Listing(rom))
	}

	if *inPath == "" && *disasmPath == "" && *runROMPath == "" && !*runProgram {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to assemble, -disasm to list, -run to run assembled output, or -run-rom <file>")
		flag.Usage()
		os.Exit(2)
	}

	runTarget := ""
	switch {
	case *runROMPath != "":
		runTarget = *runROMPath
	case *runProgram:
		if assembledOutput == "" {
			fmt.Fprintln(os.Stderr, "-run requires -in, or use -run-rom <file>")
			os.Exit(2)
		}
		runTarget = assembledOutput
	default:
		return
	}

	if err := runROM(logger, runTarget, *clockHz); err != nil {
		logger.Fatal("run failed", log.String("file", runTarget), log.Err(err))
	}
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".ch8"
	}
	return strings.TrimSuffix(inPath, ext) + ".ch8"
}

// frameCounter discards frames, keeping only a tally for the run report.
type frameCounter struct {
	frames int
}

func (f *frameCounter) Render([]display.Pixel) error {
	f.frames++
	return nil
}

func runROM(logger *log.Logger, path string, clockHz int) error {
	rom, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = rom.Close()
	}()

	console, err := chip8.New(rom)
	if err != nil {
		return fmt.Errorf("loading ROM: %w", err)
	}
	console.SetLogger(logger)

	counter := &frameCounter{}
	if err := driver.New(console, counter, clockHz, logger).Run(app.Context()); err != nil {
		return err
	}

	fmt.Printf("run complete (%s): %d frames drawn\n", path, counter.frames)
	return nil
}
