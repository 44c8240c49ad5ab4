package selector

import (
	"errors"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/AegisDefend/aegis-installer/internal/catalog"
	"github.com/AegisDefend/aegis-installer/internal/platform"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

// Policy selects how the newest matching package is chosen.
type Policy string

const (
	// PolicyServerOrder returns the first match, trusting the catalog's
	// descending sort.
	PolicyServerOrder Policy = "server-order"
	// PolicyVersion parses every match's dotted version and returns the
	// highest, independent of server order.
	PolicyVersion Policy = "version"
)

// ErrNoMatch means no catalog record satisfied the channel and architecture
// filters. Callers must treat this as fatal, never as "install nothing".
var ErrNoMatch = errors.New("could not determine a package for the requested channel and architecture")

// Result identifies the single package chosen for download.
type Result struct {
	FileName     string
	Link         string
	MajorVersion string
	Version      string
}

// Select picks at most one package from the catalog listing. A returned
// record always satisfies both the channel and the architecture filter.
func Select(records []catalog.PackageRecord, channel string, arch platform.ArchTag, policy Policy, log *logger.Logger) (Result, error) {
	matches := filter(records, channel, arch)
	if len(matches) == 0 {
		return Result{}, fmt.Errorf("%w: channel=%s arch=%s scanned=%d", ErrNoMatch, channel, arch, len(records))
	}

	var chosen catalog.PackageRecord
	switch policy {
	case PolicyVersion:
		best, err := newestByVersion(matches, log)
		if err != nil {
			return Result{}, err
		}
		chosen = best
	default:
		chosen = matches[0]
	}

	log.WithFields(logger.Fields{
		"file":    chosen.FileName,
		"version": chosen.Version,
		"status":  chosen.Status,
		"policy":  string(policy),
	}).Info("Selected package")

	return Result{
		FileName:     chosen.FileName,
		Link:         chosen.Link,
		MajorVersion: chosen.MajorVersion,
		Version:      chosen.Version,
	}, nil
}

// filter keeps records whose status starts with the channel ("ga" matches
// "ga", "ga-sp1", ...) and whose file name matches the target architecture.
func filter(records []catalog.PackageRecord, channel string, arch platform.ArchTag) []catalog.PackageRecord {
	var matches []catalog.PackageRecord
	for _, rec := range records {
		if !strings.HasPrefix(strings.ToLower(rec.Status), channel) {
			continue
		}
		if hasAarchMarker(rec.FileName) != (arch == platform.ArchAarch64) {
			continue
		}
		matches = append(matches, rec)
	}
	return matches
}

// hasAarchMarker reports whether the file name carries an ARM architecture
// marker.
func hasAarchMarker(fileName string) bool {
	name := strings.ToLower(fileName)
	return strings.Contains(name, "aarch") || strings.Contains(name, "arm")
}

// newestByVersion picks the record with the highest dotted version
// (major.minor.patch.build). Records with unparsable versions are skipped.
// Equal versions keep the earlier record, preserving server order.
func newestByVersion(matches []catalog.PackageRecord, log *logger.Logger) (catalog.PackageRecord, error) {
	var best catalog.PackageRecord
	var bestVersion *goversion.Version

	for _, rec := range matches {
		v, err := goversion.NewVersion(rec.Version)
		if err != nil {
			log.WithFields(logger.Fields{
				"file":    rec.FileName,
				"version": rec.Version,
			}).Warn("Skipping record with unparsable version")
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best = rec
			bestVersion = v
		}
	}

	if bestVersion == nil {
		return catalog.PackageRecord{}, fmt.Errorf("%w: no match carries a parsable version", ErrNoMatch)
	}
	return best, nil
}
