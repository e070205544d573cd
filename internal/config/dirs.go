package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dirs are the locations wasmenv reads from and writes to.
type Dirs struct {
	Config string
	Data   string
	Cache  string
}

// ResolveDirs determines the configuration, data and cache directories. Explicit settings in the configuration take
// precedence over the XDG variables which in turn take precedence over platform defaults.
func ResolveDirs(conf *Global) Dirs {
	d := Dirs{
		Config: UserDir(),
		Data:   userDataDir(),
		Cache:  userCacheDir(),
	}
	if conf != nil {
		if conf.DataDir != "" {
			d.Data = conf.DataDir
		}
		if conf.CacheDir != "" {
			d.Cache = conf.CacheDir
		}
	}
	return d
}

func userDataDir() string {
	switch runtime.GOOS {
	case "linux":
		if p, ok := os.LookupEnv("XDG_DATA_HOME"); ok && p != "" {
			return filepath.Join(p, DriverName)
		}
		return filepath.Join(os.Getenv("HOME"), ".local", "share", DriverName)
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", DriverName)
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), DriverName, "data")
	default:
		return filepath.Join(os.TempDir(), DriverName, "data")
	}
}

func userCacheDir() string {
	if runtime.GOOS == "linux" {
		if p, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && p != "" {
			return filepath.Join(p, DriverName)
		}
	}
	if p, err := os.UserCacheDir(); err == nil {
		return filepath.Join(p, DriverName)
	}
	return filepath.Join(os.TempDir(), DriverName, "cache")
}
