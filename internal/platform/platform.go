package platform

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// DisplayServer identifies the graphical session the agent runs under on Linux.
type DisplayServer string

const (
	DisplayNone    DisplayServer = "none"
	DisplayX11     DisplayServer = "x11"
	DisplayWayland DisplayServer = "wayland"
	DisplayNative  DisplayServer = "native" // macOS and Windows
)

var (
	detectOnce       sync.Once
	detectedPlatform Platform
)

// Detect returns the current platform, caching the result
func Detect() Platform {
	detectOnce.Do(func() {
		detectedPlatform = detectPlatform()
	})
	return detectedPlatform
}

// resetDetection clears the cached result. Tests only.
func resetDetection() {
	detectOnce = sync.Once{}
	detectedPlatform = ""
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return detectLinuxOrWSL()
	default:
		return PlatformUnknown
	}
}

// detectLinuxOrWSL distinguishes between native Linux and WSL (1 or 2)
func detectLinuxOrWSL() Platform {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return detectWSLVersion()
	}

	procVersion, err := os.ReadFile("/proc/version")
	if err != nil {
		return PlatformLinux
	}
	if strings.Contains(strings.ToLower(string(procVersion)), "microsoft") {
		return detectWSLVersion()
	}
	return PlatformLinux
}

// detectWSLVersion distinguishes between WSL1 and WSL2
func detectWSLVersion() Platform {
	procVersion, err := os.ReadFile("/proc/version")
	if err == nil {
		versionStr := string(procVersion)
		if strings.Contains(versionStr, "microsoft-standard") {
			return PlatformWSL2
		}
		if strings.Contains(versionStr, "Microsoft") {
			return PlatformWSL1
		}
	}
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// IsWSL returns true if running in any WSL environment
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

// Display reports which display server keystrokes and clipboard traffic go
// through. WSL is treated as native because the Windows host owns both.
func Display() DisplayServer {
	return displayFor(Detect(), os.Getenv)
}

func displayFor(p Platform, getenv func(string) string) DisplayServer {
	switch p {
	case PlatformMacOS, PlatformWindows, PlatformWSL1, PlatformWSL2:
		return DisplayNative
	case PlatformLinux:
		if getenv("WAYLAND_DISPLAY") != "" {
			return DisplayWayland
		}
		if getenv("DISPLAY") != "" {
			return DisplayX11
		}
		return DisplayNone
	default:
		return DisplayNone
	}
}

// HasNumLock reports whether the keyboard LED used for blink signals exists.
// Apple keyboards have no Num Lock key.
func HasNumLock() bool {
	return Detect() != PlatformMacOS
}

// LookPath is exec.LookPath, swappable in tests.
var LookPath = exec.LookPath

// FirstAvailable returns the first command name found in PATH.
func FirstAvailable(names ...string) (string, bool) {
	for _, name := range names {
		if path, err := LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}
