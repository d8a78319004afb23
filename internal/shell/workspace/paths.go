package workspace

import "path/filepath"

// Paths locates everything the platform keeps under its home directory.
type Paths struct {
	Home        string
	ConfigFile  string
	EnvFile     string
	ComposeFile string
	StateDir    string
	JournalFile string
	LogsDir     string
}

// DerivePaths maps a home directory onto the workspace layout.
func DerivePaths(home string) Paths {
	return Paths{
		Home:        home,
		ConfigFile:  filepath.Join(home, "config.yaml"),
		EnvFile:     filepath.Join(home, ".env"),
		ComposeFile: filepath.Join(home, "docker-compose.yaml"),
		StateDir:    filepath.Join(home, "state"),
		JournalFile: filepath.Join(home, "journal.db"),
		LogsDir:     filepath.Join(home, "logs"),
	}
}
