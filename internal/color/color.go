// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package color provides ANSI foreground-color helpers for terminal output,
// with an auto-detecting on/off switch so piped output stays plain text.
package color

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	escape = "\033["
	clear  = escape + "0m"
)

// ColorCode is an ANSI foreground color code.
type ColorCode int

// Foreground text colors.
const (
	BlackFg ColorCode = iota + 30
	RedFg
	GreenFg
	YellowFg
	BlueFg
	MagentaFg
	CyanFg
	WhiteFg
	DefaultFg
)

// Color renders formatted strings, optionally wrapped in ANSI color codes.
type Color interface {
	Red(format string, a ...interface{}) string
	Green(format string, a ...interface{}) string
	Yellow(format string, a ...interface{}) string
	Blue(format string, a ...interface{}) string
	Magenta(format string, a ...interface{}) string
	Cyan(format string, a ...interface{}) string
	WithColor(code ColorCode, format string, a ...interface{}) string
	Enabled() bool
}

type color struct{}

func (color) Red(format string, a ...interface{}) string     { return colorString(RedFg, format, a...) }
func (color) Green(format string, a ...interface{}) string   { return colorString(GreenFg, format, a...) }
func (color) Yellow(format string, a ...interface{}) string  { return colorString(YellowFg, format, a...) }
func (color) Blue(format string, a ...interface{}) string    { return colorString(BlueFg, format, a...) }
func (color) Magenta(format string, a ...interface{}) string { return colorString(MagentaFg, format, a...) }
func (color) Cyan(format string, a ...interface{}) string    { return colorString(CyanFg, format, a...) }
func (color) WithColor(c ColorCode, format string, a ...interface{}) string {
	return colorString(c, format, a...)
}
func (color) Enabled() bool { return true }

func colorString(c ColorCode, format string, a ...interface{}) string {
	if c == DefaultFg {
		return fmt.Sprintf(format, a...)
	}
	return fmt.Sprintf("%v%vm%v%v", escape, int(c), fmt.Sprintf(format, a...), clear)
}

type monochrome struct{}

func (monochrome) Red(format string, a ...interface{}) string     { return fmt.Sprintf(format, a...) }
func (monochrome) Green(format string, a ...interface{}) string   { return fmt.Sprintf(format, a...) }
func (monochrome) Yellow(format string, a ...interface{}) string  { return fmt.Sprintf(format, a...) }
func (monochrome) Blue(format string, a ...interface{}) string    { return fmt.Sprintf(format, a...) }
func (monochrome) Magenta(format string, a ...interface{}) string { return fmt.Sprintf(format, a...) }
func (monochrome) Cyan(format string, a ...interface{}) string    { return fmt.Sprintf(format, a...) }
func (monochrome) WithColor(_ ColorCode, format string, a ...interface{}) string {
	return fmt.Sprintf(format, a...)
}
func (monochrome) Enabled() bool { return false }

// EnableColor selects when ANSI colors are emitted.
type EnableColor int

const (
	ColorNever EnableColor = iota
	ColorAuto
	ColorAlways
)

// NewColor constructs a Color according to the given policy, falling back
// to a no-op monochrome implementation when colors aren't wanted or the
// output isn't a terminal.
func NewColor(enableColor EnableColor) Color {
	ec := enableColor != ColorNever
	if enableColor == ColorAuto {
		ec = isatty()
	}
	if ec {
		return color{}
	}
	return monochrome{}
}

func isatty() bool {
	_, err := unix.IoctlGetTermios(1, ioctlTermios)
	return err == nil
}

func (ec *EnableColor) String() string {
	switch *ec {
	case ColorNever:
		return "never"
	case ColorAlways:
		return "always"
	default:
		return "auto"
	}
}

func (ec *EnableColor) Set(s string) error {
	switch s {
	case "never":
		*ec = ColorNever
	case "auto":
		*ec = ColorAuto
	case "always":
		*ec = ColorAlways
	default:
		return fmt.Errorf("%s is not a valid color value", s)
	}
	return nil
}

func (ec *EnableColor) Type() string { return "color" }
