package helper

import (
	"os"
	"path/filepath"
)

// DefaultConfigDir is the last place a relative configuration file is looked up
const DefaultConfigDir = "/etc/sessionkv"

// GetCfgPath returns the path to the configuration file.
//
// Absolute paths are returned untouched. Relative names are looked up in the
// working directory, then in ./configs, and finally fall back to DefaultConfigDir.
func GetCfgPath(filename string) string {
	if filename == "" {
		panic("filename cannot be empty")
	}

	if filepath.IsAbs(filename) {
		return filename
	}

	if found := lookupCandidates(filename); found != "" {
		return found
	}
	return filepath.Join(DefaultConfigDir, filename)
}

func lookupCandidates(filename string) string {
	wd, err := os.Getwd()
	if err != nil || wd == "" {
		return ""
	}

	for _, candidate := range []string{
		filepath.Join(wd, filename),
		filepath.Join(wd, "configs", filename),
	} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if abs, err := filepath.Abs(candidate); err == nil {
			return abs
		}
	}
	return ""
}
