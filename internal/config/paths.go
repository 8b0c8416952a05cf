// Package config resolves where the CLI keeps its state and loads the saved
// credentials, layered with environment overrides.
package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the state directory.
const HomeEnv = "JOVIAN_HOME"

// Paths contains the locations of the CLI's state.
type Paths struct {
	Home string // ~/.jovian
}

// GetPaths returns the standard paths.
func GetPaths() *Paths {
	return &Paths{Home: homeDir()}
}

// CredentialsPath returns the path to credentials.json.
func (p *Paths) CredentialsPath() string {
	return filepath.Join(p.Home, "credentials.json")
}

func homeDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".jovian")
}
