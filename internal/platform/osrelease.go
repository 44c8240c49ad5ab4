package platform

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// OSFamily is the closed set of Linux distribution families the installer
// knows how to drive.
type OSFamily string

const (
	OSDebian OSFamily = "debian"
	OSRedHat OSFamily = "redhat"
	OSSUSE   OSFamily = "suse"
	OSFedora OSFamily = "fedora"
)

const osReleasePath = "/etc/os-release"

// PackageFamily returns the artifact format installed on this OS family.
func (f OSFamily) PackageFamily() PackageFamily {
	if f == OSDebian {
		return FamilyDeb
	}
	return FamilyRPM
}

// ParseOSRelease parses the os-release key=value format. Values may be
// quoted; comment and malformed lines are skipped.
func ParseOSRelease(r io.Reader) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		value = strings.Trim(strings.TrimSpace(value), `"'`)
		fields[strings.TrimSpace(key)] = value
	}

	return fields
}

// FamilyFromOSRelease resolves the distribution family from parsed os-release
// fields, checking ID first and falling back to the ID_LIKE ancestry list.
func FamilyFromOSRelease(fields map[string]string) (OSFamily, error) {
	ids := []string{strings.ToLower(fields["ID"])}
	ids = append(ids, strings.Fields(strings.ToLower(fields["ID_LIKE"]))...)

	for _, id := range ids {
		switch id {
		case "debian", "ubuntu":
			return OSDebian, nil
		case "fedora":
			return OSFedora, nil
		case "rhel", "centos", "rocky", "almalinux", "amzn", "ol":
			return OSRedHat, nil
		case "sles", "suse", "opensuse", "opensuse-leap", "opensuse-tumbleweed":
			return OSSUSE, nil
		}
	}

	return "", fmt.Errorf("unsupported distribution: ID=%q ID_LIKE=%q", fields["ID"], fields["ID_LIKE"])
}

// DetectOSFamily reads /etc/os-release and resolves the distribution family.
func DetectOSFamily() (OSFamily, error) {
	file, err := os.Open(osReleasePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", osReleasePath, err)
	}
	defer file.Close()

	return FamilyFromOSRelease(ParseOSRelease(file))
}
