package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// ArchTag is the normalized CPU architecture of the target host.
type ArchTag string

const (
	ArchX8664   ArchTag = "x86_64"
	ArchAarch64 ArchTag = "aarch64"
	ArchX8632   ArchTag = "x86_32"
)

// PackageFamily is the artifact format the host installs.
type PackageFamily string

const (
	FamilyDeb PackageFamily = "deb"
	FamilyRPM PackageFamily = "rpm"
	FamilyExe PackageFamily = "exe"
)

// Descriptor describes the target host for package selection and install
// dispatch. It is built once per run and never mutated.
type Descriptor struct {
	Arch    ArchTag
	Package PackageFamily
	OS      OSFamily
}

// NormalizeArch maps the architecture spellings seen across platforms
// ("64 bit"/"32 bit" on Windows, uname and GOARCH values elsewhere) to the
// canonical ArchTag. Empty and "unknown" inputs default to x86_64.
func NormalizeArch(raw string) ArchTag {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "aarch64", "arm64":
		return ArchAarch64
	case "32 bit", "i386", "i686", "x86", "x86_32", "386":
		return ArchX8632
	default:
		return ArchX8664
	}
}

// PlatformType returns the catalog platformTypes value for the descriptor.
func (d Descriptor) PlatformType() string {
	if d.Package == FamilyExe {
		return "windows"
	}
	return "linux"
}

// FileExtension returns the catalog fileExtension value for the descriptor.
func (d Descriptor) FileExtension() string {
	return "." + string(d.Package)
}

// OSArches returns the catalog osArches value. The package API only filters
// Windows packages by this field; Linux packages carry the architecture in
// the file name instead.
func (d Descriptor) OSArches() string {
	if d.Package != FamilyExe {
		return ""
	}
	if d.Arch == ArchX8632 {
		return "32 bit"
	}
	return "64 bit"
}

// Detect builds the descriptor for the current host. archOverride, when
// non-empty, replaces the detected architecture (any spelling accepted by
// NormalizeArch).
func Detect(archOverride string) (Descriptor, error) {
	arch := NormalizeArch(runtime.GOARCH)
	if archOverride != "" {
		arch = NormalizeArch(archOverride)
	}

	if runtime.GOOS == "windows" {
		return Descriptor{Arch: arch, Package: FamilyExe}, nil
	}

	family, err := DetectOSFamily()
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to detect OS family: %w", err)
	}

	return Descriptor{Arch: arch, Package: family.PackageFamily(), OS: family}, nil
}
