package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.design/x/hotkey/mainthread"

	"github.com/asheshgoplani/snapdeck/internal/config"
)

const Version = "0.3.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
func initColorProfile() {
	// SNAPDECK_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv(config.EnvColor); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	// Otherwise keep lipgloss's own detection, which already degrades to
	// plain text when stdout is not a terminal.
}

func main() {
	args := os.Args[1:]

	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("snapdeck v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "run":
		code := 0
		// Hotkey registration on macOS must happen on the main thread.
		mainthread.Init(func() { code = handleRun(args) })
		os.Exit(code)
	case "classify":
		os.Exit(handleClassify(args))
	case "ask":
		os.Exit(handleAsk(args))
	case "init-config":
		os.Exit(handleInitConfig(args))
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(2)
	}
}

func printHelp() {
	fmt.Printf("snapdeck v%s\n", Version)
	fmt.Println("Hotkey answer agent: select a question, press a key, paste the answer.")
	fmt.Println()
	fmt.Println("Usage: snapdeck [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run              Start the agent (default)")
	fmt.Println("  classify [text]  Classify text (or stdin) and show the prompt style")
	fmt.Println("  ask [text]       Query once and print the chunks that would be pasted")
	fmt.Println("  init-config      Write an example ~/.snapdeck/config.toml")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Default hotkeys (change under [hotkeys]):")
	fmt.Println("  ctrl+insert      Copy the selection and ask")
	fmt.Println("  shift+insert     Paste the next chunk")
	fmt.Println("  ctrl+shift+v     Paste the next chunk (alternate)")
	fmt.Println("  ctrl+alt+end     Exit")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  GEMINI_API_KEY   API key (also read from .env)")
	fmt.Println("  SNAPDECK_DEBUG   Write diagnostics to ~/.snapdeck/debug.log")
	fmt.Println("  SNAPDECK_HOME    State directory (default ~/.snapdeck)")
	fmt.Println("  SNAPDECK_COLOR   truecolor, 256, 16 or none")
}
