package main

import (
	"strings"

	"github.com/eiannone/keyboard"
)

// control is what a key press asks of the player outside the game.
type control uint8

const (
	controlNone control = iota
	controlQuit
	controlPause
)

// physical names a key the way the keymap does. The second result is
// false for keys the game never binds.
func physical(ev keyboard.KeyEvent) (string, bool) {
	switch ev.Key {
	case keyboard.KeyArrowLeft:
		return "left", true
	case keyboard.KeyArrowDown:
		return "down", true
	case keyboard.KeyArrowUp:
		return "up", true
	case keyboard.KeyArrowRight:
		return "right", true
	case keyboard.KeySpace:
		return "space", true
	}
	if ev.Rune != 0 {
		return strings.ToLower(string(ev.Rune)), true
	}
	return "", false
}

// controlFor returns the out-of-game meaning of a key.
func controlFor(ev keyboard.KeyEvent) control {
	switch ev.Key {
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return controlQuit
	case keyboard.KeyTab:
		return controlPause
	}
	return controlNone
}
