// Package build carries build-time metadata injected via -ldflags.
package build

const ProjectName = "sightline"

var (
	// Version is the semantic release version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = ""

	// Date is the build timestamp.
	Date = ""
)
