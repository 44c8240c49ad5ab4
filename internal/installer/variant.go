package installer

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/AegisDefend/aegis-installer/internal/platform"
)

// Variant is the install invocation style for the staged artifact.
type Variant int

const (
	VariantDpkg Variant = iota
	VariantRPM
	VariantExeModern
	VariantExeLegacy
)

func (v Variant) String() string {
	switch v {
	case VariantDpkg:
		return "dpkg"
	case VariantRPM:
		return "rpm"
	case VariantExeModern:
		return "exe-modern"
	case VariantExeLegacy:
		return "exe-legacy"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// modernCLIThreshold is the first Windows installer generation that accepts
// the non-interactive token/quiet CLI instead of positional legacy flags.
var modernCLIThreshold = goversion.Must(goversion.NewVersion("22.1"))

// ResolveVariant maps the host descriptor and the selected package's major
// version to exactly one install variant. Linux packages always use their
// native package manager; Windows installers dispatch on the 22.1 threshold.
// An unparsable major version is treated as modern, since only historic
// packages predate the threshold.
func ResolveVariant(desc platform.Descriptor, majorVersion string) (Variant, error) {
	switch desc.Package {
	case platform.FamilyDeb:
		return VariantDpkg, nil
	case platform.FamilyRPM:
		return VariantRPM, nil
	case platform.FamilyExe:
		v, err := goversion.NewVersion(majorVersion)
		if err != nil {
			return VariantExeModern, nil
		}
		if v.LessThan(modernCLIThreshold) {
			return VariantExeLegacy, nil
		}
		return VariantExeModern, nil
	default:
		return 0, fmt.Errorf("no install variant for package family %q", desc.Package)
	}
}
