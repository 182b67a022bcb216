// Package paths centralizes every filesystem location the gateway touches,
// built once at startup and passed by reference to whatever needs it.
package paths

import "path/filepath"

// Paths holds every path the gateway reads from or writes to.
type Paths struct {
	LogDir      string
	DataDir     string
	MappingCSV  string
	AlarmCSV    string
	SRUIni      string
	TLSCertFile string
	TLSKeyFile  string
	PIDFile     string
	SQLitePath  string
}

// Default returns a Paths rooted at dir, using the conventional file names.
func Default(dir string) Paths {
	return Paths{
		LogDir:      filepath.Join(dir, "log"),
		DataDir:     filepath.Join(dir, "data"),
		MappingCSV:  filepath.Join(dir, "mapping.csv"),
		AlarmCSV:    filepath.Join(dir, "alarmsMapping.csv"),
		SRUIni:      filepath.Join(dir, "sru.ini"),
		TLSCertFile: filepath.Join(dir, "tls", "server.crt"),
		TLSKeyFile:  filepath.Join(dir, "tls", "server.key"),
		PIDFile:     filepath.Join(dir, "daqbridge.pid"),
		SQLitePath:  filepath.Join(dir, "data", "audit.db"),
	}
}
