// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/imagelens/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// NewContext creates a build context.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata linked into this binary.
func Current() *Context {
	return NewContext(version, buildDate)
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the release name reported to error tracking.
func (c *Context) Release() string {
	return "imagelens@" + c.GetVersion()
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("imagelens %s (built %s, %s %s/%s)",
		c.GetVersion(), c.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
