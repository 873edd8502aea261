// Package version provides build and version information for the workflow engine.
package version

// Version is the current release version.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/version.Version=x.y.z"
var Version = "0.3.0"
