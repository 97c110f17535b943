// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

// UnknownValue is reported for metadata the build did not set
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
// It is injected at startup from linker flags.
type Context struct {
	version   string
	buildDate string
}

// NewContext creates a build context
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the version tag of the build
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the time the binary was built
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Release returns the release name reported with telemetry events
func (c *Context) Release() string {
	return "atsdaq@" + c.Version()
}

// String returns version and build date for --version output
func (c *Context) String() string {
	return c.Version() + " (built " + c.BuildDate() + ")"
}
