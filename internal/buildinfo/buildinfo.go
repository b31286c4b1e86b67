// Package buildinfo contains build-time metadata injected at link time,
// kept separate from user configuration.
package buildinfo

// Set via -ldflags "-X github.com/tphakala/foresight-go/internal/buildinfo.Version=..."
var (
	// Version holds the Git version tag from build
	Version = "dev"

	// BuildDate is the time when the binary was built
	BuildDate = "unknown"
)

// Context carries build metadata to components that report it.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the build context for this binary.
func Current() Context {
	return Context{
		Version:   Version,
		BuildDate: BuildDate,
	}
}
