package main

import (
	"github.com/ColonelBlimp/cwkeyer/cmd"
	"github.com/ColonelBlimp/cwkeyer/internal/recovery"
	"golang.design/x/hotkey/mainthread"
)

func main() {
	defer recovery.HandlePanic()
	// global hotkeys need the OS main thread on macOS
	mainthread.Init(cmd.Execute)
}
