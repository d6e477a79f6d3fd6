package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	configFileName = "vaultsync.yaml"
	configDirName  = "vaultsync"
)

// Environment variables that relocate the shared layers. Scheduled syncs
// often run under a service account whose profile has no user config.
const (
	EnvSystemConfig = "VAULTSYNC_SYSTEM_CONFIG"
	EnvUserConfig   = "VAULTSYNC_USER_CONFIG"
	EnvNoInheritVar = "VAULTSYNC_NO_INHERIT"
)

// ConfigLevel is the precedence of a config layer. The system layer usually
// carries the backend and type definitions shared by every operator, the
// user layer an operator's own secret references, and the project layer the
// jobs.
type ConfigLevel string

const (
	LevelSystem  ConfigLevel = "system"
	LevelUser    ConfigLevel = "user"
	LevelProject ConfigLevel = "project"
)

// ConfigLayerInfo describes one config layer and whether it loaded.
type ConfigLayerInfo struct {
	Err    error // set when the file exists but failed to load
	Path   string
	Level  ConfigLevel
	Loaded bool
}

// DiscoverOptions locates the config layers.
type DiscoverOptions struct {
	// ProjectPath is the job file. Required.
	ProjectPath string

	// SystemConfigPath and UserConfigPath override the shared layers. Empty
	// falls back to the environment, then the OS default. A path that does
	// not exist skips the layer.
	SystemConfigPath string
	UserConfigPath   string
}

// DiscoverPaths returns the layers to load, system first and project last.
// A file reachable through more than one layer is kept at its lowest level.
func DiscoverPaths(opts DiscoverOptions) []ConfigLayerInfo {
	var layers []ConfigLayerInfo
	seen := make(map[string]bool)

	add := func(level ConfigLevel, path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		layers = append(layers, ConfigLayerInfo{Path: path, Level: level})
	}

	add(LevelSystem, firstNonEmpty(opts.SystemConfigPath, os.Getenv(EnvSystemConfig), defaultSystemConfigPath()))
	add(LevelUser, firstNonEmpty(opts.UserConfigPath, os.Getenv(EnvUserConfig), defaultUserConfigPath()))
	add(LevelProject, opts.ProjectPath)
	return layers
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// defaultSystemConfigPath is %ProgramData%\vaultsync\vaultsync.yaml on
// Windows, where vault sync jobs mostly run, and /etc/vaultsync elsewhere.
func defaultSystemConfigPath() string {
	if runtime.GOOS == "windows" {
		pd := os.Getenv("ProgramData")
		if pd == "" {
			pd = `C:\ProgramData`
		}
		return filepath.Join(pd, configDirName, configFileName)
	}
	return filepath.Join("/etc", configDirName, configFileName)
}

func defaultUserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, configFileName)
}

// EnvNoInherit reports whether VAULTSYNC_NO_INHERIT asks to load the project
// layer alone.
func EnvNoInherit() bool {
	return envBoolTrue(EnvNoInheritVar)
}

func envBoolTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true"
}
