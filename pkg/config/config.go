// Package config handles the optional chip8.toml driver configuration:
// clock rate, window scale, colors and the keyboard-to-keypad mapping.
package config

import (
	"fmt"
	"os"
	"unicode"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the configuration filename looked up next to the ROM.
const DefaultFile = "chip8.toml"

// Config holds driver-side settings. The interpreter core never reads it.
type Config struct {
	// ClockHz is the Step rate of the tick loop.
	ClockHz int `toml:"clock-hz"`
	// Scale is the desktop window pixels per framebuffer cell.
	Scale int `toml:"scale"`
	// OnColor and OffColor are hex RGB strings like "#00FF00".
	OnColor  string `toml:"on-color"`
	OffColor string `toml:"off-color"`
	// Keypad maps keyboard characters to keypad digits 0-F. Keys are single
	// characters ("1", "q"); values are hex digit strings ("C").
	Keypad map[string]string `toml:"keypad"`
}

// Default returns the stock configuration: 60 Hz, 10x scale, green on black,
// and the conventional QWERTY mapping of the hexadecimal keypad.
func Default() Config {
	return Config{
		ClockHz:  60,
		Scale:    10,
		OnColor:  "#00FF00",
		OffColor: "#000000",
		Keypad: map[string]string{
			"1": "1", "2": "2", "3": "3", "4": "C",
			"q": "4", "w": "5", "e": "6", "r": "D",
			"a": "7", "s": "8", "d": "9", "f": "E",
			"z": "A", "x": "0", "c": "B", "v": "F",
		},
	}
}

// Load reads path and merges it over the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var file Config
	if err := toml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if file.ClockHz != 0 {
		cfg.ClockHz = file.ClockHz
	}
	if file.Scale != 0 {
		cfg.Scale = file.Scale
	}
	if file.OnColor != "" {
		cfg.OnColor = file.OnColor
	}
	if file.OffColor != "" {
		cfg.OffColor = file.OffColor
	}
	if len(file.Keypad) > 0 {
		cfg.Keypad = file.Keypad
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ClockHz <= 0 {
		return fmt.Errorf("clock-hz must be positive, got %d", c.ClockHz)
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %d", c.Scale)
	}
	if _, _, _, err := ParseColor(c.OnColor); err != nil {
		return fmt.Errorf("on-color: %w", err)
	}
	if _, _, _, err := ParseColor(c.OffColor); err != nil {
		return fmt.Errorf("off-color: %w", err)
	}
	if _, err := c.KeypadDigits(); err != nil {
		return err
	}
	return nil
}

// KeypadDigits resolves the keypad table to character -> digit values.
// Characters are normalized to upper case, so bindings are case insensitive.
func (c Config) KeypadDigits() (map[rune]uint8, error) {
	digits := make(map[rune]uint8, len(c.Keypad))
	for key, value := range c.Keypad {
		runes := []rune(key)
		if len(runes) != 1 {
			return nil, fmt.Errorf("keypad key %q must be a single character", key)
		}
		digit, err := parseHexDigit(value)
		if err != nil {
			return nil, fmt.Errorf("keypad[%q]: %w", key, err)
		}
		digits[unicode.ToUpper(runes[0])] = digit
	}
	return digits, nil
}

func parseHexDigit(s string) (uint8, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("bad keypad digit %q", s)
	}
	switch ch := s[0]; {
	case ch >= '0' && ch <= '9':
		return ch - '0', nil
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, nil
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, nil
	}
	return 0, fmt.Errorf("bad keypad digit %q", s)
}

// ParseColor decodes a "#RRGGBB" hex color.
func ParseColor(s string) (r, g, b uint8, err error) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, fmt.Errorf("bad color %q, want #RRGGBB", s)
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return 0, 0, 0, fmt.Errorf("bad color %q, want #RRGGBB", s)
	}
	return uint8(rv), uint8(gv), uint8(bv), nil
}
