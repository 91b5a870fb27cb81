package platform

import (
	"context"
	"fmt"
	"runtime"

	"sqlsvc/internal/common"
)

type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformMacOS   Platform = "darwin"
	PlatformUnknown Platform = "unknown"
)

type Architecture string

const (
	ArchAMD64   Architecture = "amd64"
	ArchARM64   Architecture = "arm64"
	Arch386     Architecture = "386"
	ArchARM     Architecture = "arm"
	ArchUnknown Architecture = "unknown"
)

// Identity names the OS and architecture the service binary must match.
// Computed once per process and treated as immutable afterwards.
type Identity struct {
	Platform     Platform
	Architecture Architecture
}

// GetCurrentPlatform returns the current operating system platform
// detected at runtime (Windows, Linux, Darwin/macOS, or Unknown).
func GetCurrentPlatform() Platform {
	switch runtime.GOOS {
	case string(PlatformWindows):
		return PlatformWindows
	case string(PlatformLinux):
		return PlatformLinux
	case string(PlatformMacOS):
		return PlatformMacOS
	default:
		return PlatformUnknown
	}
}

// GetCurrentArchitecture returns the current system architecture
// detected at runtime (AMD64, ARM64, 386, ARM, or Unknown).
func GetCurrentArchitecture() Architecture {
	switch runtime.GOARCH {
	case string(ArchAMD64):
		return ArchAMD64
	case string(ArchARM64):
		return ArchARM64
	case string(Arch386):
		return Arch386
	case string(ArchARM):
		return ArchARM
	default:
		return ArchUnknown
	}
}

// Resolver probes the running system for its platform identity.
type Resolver interface {
	Resolve(ctx context.Context) (Identity, error)
}

// RuntimeResolver resolves the identity from the Go runtime. It is the
// production Resolver; tests substitute fixed identities.
type RuntimeResolver struct{}

// Resolve returns the current platform identity. An unrecognized operating
// system is a fatal condition for the session: no service binary exists for
// it, so the error carries no retry semantics.
func (RuntimeResolver) Resolve(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	id := Identity{
		Platform:     GetCurrentPlatform(),
		Architecture: GetCurrentArchitecture(),
	}

	if id.Platform == PlatformUnknown {
		return id, fmt.Errorf("%w: unrecognized operating system %q", common.ErrInvalidPlatform, runtime.GOOS)
	}

	return id, nil
}

func (p Platform) String() string {
	return string(p)
}

func (a Architecture) String() string {
	return string(a)
}

// String renders the identity as "os-arch", matching release artifact names.
func (id Identity) String() string {
	return string(id.Platform) + "-" + string(id.Architecture)
}

func IsWindows() bool {
	return GetCurrentPlatform() == PlatformWindows
}

func IsLinux() bool {
	return GetCurrentPlatform() == PlatformLinux
}

func IsMacOS() bool {
	return GetCurrentPlatform() == PlatformMacOS
}

// GetExecutableExtension returns the platform executable suffix, ".exe" on
// Windows and empty elsewhere.
func GetExecutableExtension() string {
	if IsWindows() {
		return ".exe"
	}
	return ""
}
