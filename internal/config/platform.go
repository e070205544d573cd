package config

import (
	"fmt"
	"runtime"

	"github.com/Helcaraxan/wasmenv/internal/errs"
)

type Platform string

const (
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

type Arch string

const (
	ArchAArch64 Arch = "aarch64"
	ArchMIPS64  Arch = "mips64"
	ArchRISCV64 Arch = "riscv64"
	ArchX64     Arch = "x86_64"
	ArchGNU64   Arch = "gnu"
)

func CurrentPlatform() Platform {
	return Platform(runtime.GOOS)
}

func CurrentArch() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchX64
	case "arm64":
		return ArchAArch64
	case "mips64", "mips64le":
		return ArchMIPS64
	case "riscv64":
		return ArchRISCV64
	default:
		return Arch(runtime.GOARCH)
	}
}

type target struct {
	platform Platform
	arch     Arch
}

// The single source of truth for the names of release assets.
var assetNames = map[target]string{
	{PlatformLinux, ArchX64}:      "wasmer-linux-amd64.tar.gz",
	{PlatformLinux, ArchAArch64}:  "wasmer-linux-aarch64.tar.gz",
	{PlatformLinux, ArchMIPS64}:   "wasmer-linux-mips64.tar.gz",
	{PlatformLinux, ArchRISCV64}:  "wasmer-linux-riscv64.tar.gz",
	{PlatformDarwin, ArchX64}:     "wasmer-darwin-amd64.tar.gz",
	{PlatformDarwin, ArchAArch64}: "wasmer-darwin-arm64.tar.gz",
	{PlatformWindows, ArchX64}:    "wasmer-windows-amd64.tar.gz",
	{PlatformWindows, ArchGNU64}:  "wasmer-windows-gnu64.tar.gz",
}

const windowsFallbackAsset = "wasmer-windows.exe"

// AssetName returns the name of the release asset holding the binary for the given platform and architecture.
func AssetName(p Platform, a Arch) (string, error) {
	if name, ok := assetNames[target{p, a}]; ok {
		return name, nil
	}
	if p == PlatformWindows {
		return windowsFallbackAsset, nil
	}
	return "", fmt.Errorf("%w: unsupported platform %s-%s", errs.ErrNotFound, p, a)
}

// BinaryFileName is the file name of the managed binary on the given platform.
func BinaryFileName(p Platform) string {
	if p == PlatformWindows {
		return BinaryName + ".exe"
	}
	return BinaryName
}
