package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/davecgh/go-spew/spew"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

const (
	DriverName = "wasmenv"
	BinaryName = "wasmer"

	// ClientIdentifier is sent as the User-Agent of every request to the release provider. GitHub rejects anonymous
	// requests without one.
	ClientIdentifier = DriverName

	configFileName = DriverName + "_conf.yaml"
)

// Environment variables making up the contract with the shell integration.
const (
	EnvShellInitialised = "WASMENV_DIR"
	EnvActiveRoot       = "WASMER_DIR"
	EnvDefaultVersion   = "WASMER_VERSION"
)

const (
	defaultCatalogSlug    = "wasmerio/wasmer"
	defaultCatalogPerPage = 30
)

type Global struct {
	DataDir  string `yaml:"data_dir"`
	CacheDir string `yaml:"cache_dir"`

	Catalog     Catalog      `yaml:"catalog"`
	RemoteCache *RemoteCache `yaml:"remote_cache"`
}

type Catalog struct {
	Slug    string `yaml:"slug"`
	BaseURL string `yaml:"base_url"`
	PerPage int    `yaml:"per_page"`
	// MaxPages bounds how many release pages are requested. A single page mirrors what the provider returns by
	// default and older releases are then invisible.
	MaxPages int `yaml:"max_pages"`
}

func Defaults() *Global {
	return &Global{
		Catalog: Catalog{
			Slug:     defaultCatalogSlug,
			PerPage:  defaultCatalogPerPage,
			MaxPages: 1,
		},
	}
}

func Parse(log *zap.Logger, conf *Global) error {
	if conf == nil {
		return errors.New("can not parse configuration into nil struct")
	}

	for _, p := range AllDirs() {
		path := filepath.Join(p, configFileName)
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			log.Error("Unable to read configuration file.", zap.String("path", path), zap.Error(err))
			return err
		}

		if err = decode(raw, conf); err != nil {
			log.Error("Invalid configuration file.", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("invalid configuration in %q: %w", path, err)
		}
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	log.Sugar().Debugf("Parsed configuration:\n%+v", spew.Sdump(conf))
	return nil
}

func decode(raw []byte, conf *Global) error {
	dec := yaml.NewDecoder(bytes.NewBuffer(raw), yaml.Strict())
	if err := dec.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (g *Global) Validate() error {
	if g.Catalog.Slug == "" {
		g.Catalog.Slug = defaultCatalogSlug
	}
	if g.Catalog.PerPage <= 0 {
		g.Catalog.PerPage = defaultCatalogPerPage
	}
	if g.Catalog.MaxPages <= 0 {
		g.Catalog.MaxPages = 1
	}
	if g.RemoteCache != nil {
		return g.RemoteCache.Validate()
	}
	return nil
}

func AllDirs() []string {
	// We need the config directories in reverse-order of priority such that we can safely unmarshal
	// them in order into the same target struct and guarantee the expected semantics.
	var dirs []string
	if p := SystemDir(); p != "" {
		dirs = append(dirs, p)
	}
	if p := UserDir(); p != "" {
		dirs = append(dirs, p)
	}
	return dirs
}

func SystemDir() string {
	switch runtime.GOOS {
	case "darwin", "linux":
		return filepath.Join("/etc", DriverName)
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMDATA"), DriverName)
	default:
		return ""
	}
}

func UserDir() string {
	switch runtime.GOOS {
	case "linux":
		if configPath, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
			return filepath.Join(configPath, DriverName)
		}
		fallthrough
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), ".config", DriverName)
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), DriverName)
	default:
		return ""
	}
}
