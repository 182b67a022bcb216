// Package version holds build-time identity, overridden via -ldflags
// -X at release build time; the zero values below are what a `go build`
// without ldflags produces.
package version

const ProgramName = "daqbridge"

const ProductName = "DAQBridge"

var (
	Version   = "dev"
	BUILDTIME = "unknown"
	CommitSHA = "unknown"
)
