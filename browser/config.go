package browser

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// LaunchConfig is built once per launch attempt and not mutated after the
// session starts.
type LaunchConfig struct {
	// Bin is the browser executable, usually from driver.Resolver.
	Bin string

	Headless     bool
	WindowWidth  int
	WindowHeight int

	DisableNotifications bool
	DisableSandbox       bool

	// ProfileDataDir is passed as --user-data-dir. When set, the directory
	// belongs to the user and is never removed on teardown.
	ProfileDataDir string
	// ProfileName is passed as --profile-directory inside ProfileDataDir.
	ProfileName string

	// RemoteDebugAddress (host:port) makes Launch attach to a running
	// browser instead of starting one.
	RemoteDebugAddress string

	Logger *slog.Logger
}

func (c *LaunchConfig) defaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1200
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 900
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// knownProfiles are the profile directory names Chromium-family browsers
// create inside a user-data dir.
var knownProfiles = []string{"default", "profile 1", "profile 2"}

// SplitProfile maps a profile path to a (user-data-dir, profile-directory)
// pair. ".../User Data/Default" yields (".../User Data", "Default"); any
// other path is used whole as a dedicated data dir with no profile name.
func SplitProfile(path string) (dataDir, profileName string) {
	if strings.TrimSpace(path) == "" {
		return "", ""
	}
	path = filepath.Clean(path)
	base := filepath.Base(path)
	for _, p := range knownProfiles {
		if strings.EqualFold(base, p) {
			return filepath.Dir(path), base
		}
	}
	return path, ""
}

// WithProfile returns a copy of c using the profile at path.
func (c LaunchConfig) WithProfile(path string) LaunchConfig {
	c.ProfileDataDir, c.ProfileName = SplitProfile(path)
	return c
}

// newLauncher translates c into launcher flags. Anti-detection flags are
// always applied.
func newLauncher(c LaunchConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(c.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("remote-allow-origins", "*").
		Set("window-size", fmt.Sprintf("%d,%d", c.WindowWidth, c.WindowHeight)).
		Delete(flags.Flag("enable-automation"))

	if c.Bin != "" {
		l = l.Bin(c.Bin)
	}
	if c.DisableNotifications {
		l = l.Set("disable-notifications")
	}
	if c.DisableSandbox {
		l = l.NoSandbox(true)
	}
	if c.ProfileDataDir != "" {
		l = l.UserDataDir(c.ProfileDataDir)
		if c.ProfileName != "" {
			l = l.ProfileDir(c.ProfileName)
		}
	}
	return l
}
