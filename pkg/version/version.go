package version

// Version of theme-switcher.
const Version = "0.3.0"

// BuildVersion returns the version string for display.
func BuildVersion() string {
	return "theme-switcher version " + Version
}
