package selector

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AegisDefend/aegis-installer/internal/catalog"
	"github.com/AegisDefend/aegis-installer/internal/platform"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.Config{Level: "error", Format: "text", FilePath: os.DevNull}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testLogger() *logger.Logger {
	return logger.NewLogger("selector_test")
}

func gaCatalog() []catalog.PackageRecord {
	return []catalog.PackageRecord{
		{Status: "ga-sp1", FileName: "agent_x86_64.rpm", Link: "https://dl/1", MajorVersion: "23.4", Version: "23.4.1.4"},
		{Status: "ga", FileName: "agent_x86_64.rpm", Link: "https://dl/2", MajorVersion: "23.3", Version: "23.3.2.1"},
	}
}

func TestSelect_FirstMatchPolicy(t *testing.T) {
	result, err := Select(gaCatalog(), "ga", platform.ArchX8664, PolicyServerOrder, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "23.4.1.4", result.Version)
}

func TestSelect_VersionPolicy(t *testing.T) {
	result, err := Select(gaCatalog(), "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "23.4.1.4", result.Version)
}

func TestSelect_VersionPolicyIgnoresServerOrder(t *testing.T) {
	// Oldest first: server-order would pick the wrong record here.
	records := []catalog.PackageRecord{
		{Status: "ga", FileName: "agent_x86_64.deb", Version: "22.1.2.9"},
		{Status: "ga", FileName: "agent_x86_64.deb", Version: "23.4.1.4"},
		{Status: "ga-sp2", FileName: "agent_x86_64.deb", Version: "23.4.1.10"},
	}

	result, err := Select(records, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "23.4.1.10", result.Version)

	first, err := Select(records, "ga", platform.ArchX8664, PolicyServerOrder, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "22.1.2.9", first.Version)
}

func TestSelect_ChannelPrefixMatch(t *testing.T) {
	records := []catalog.PackageRecord{
		{Status: "ea", FileName: "agent_x86_64.deb", Version: "23.5.0.1"},
		{Status: "ga-sp2", FileName: "agent_x86_64.deb", Version: "23.4.1.4"},
	}

	result, err := Select(records, "ga", platform.ArchX8664, PolicyServerOrder, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "23.4.1.4", result.Version)

	ea, err := Select(records, "ea", platform.ArchX8664, PolicyServerOrder, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "23.5.0.1", ea.Version)
}

func TestSelect_Aarch64RequiresMarker(t *testing.T) {
	records := []catalog.PackageRecord{
		{Status: "ga", FileName: "agent_x86_64.rpm", Version: "23.4.1.4"},
		{Status: "ga", FileName: "agent_aarch64.rpm", Version: "23.4.1.2"},
	}

	result, err := Select(records, "ga", platform.ArchAarch64, PolicyVersion, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "agent_aarch64.rpm", result.FileName)
}

func TestSelect_X86RejectsArmOnlyCatalog(t *testing.T) {
	records := []catalog.PackageRecord{
		{Status: "ga", FileName: "agent_aarch64.rpm", Version: "23.4.1.4"},
		{Status: "ga-sp1", FileName: "agent_arm64.rpm", Version: "23.4.1.5"},
	}

	_, err := Select(records, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestSelect_EmptyCatalog(t *testing.T) {
	_, err := Select(nil, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestSelect_NeverViolatesFilters(t *testing.T) {
	records := []catalog.PackageRecord{
		{Status: "ea", FileName: "agent_x86_64.deb", Version: "24.1.0.1"},
		{Status: "ga", FileName: "agent_aarch64.deb", Version: "24.1.0.2"},
		{Status: "other", FileName: "agent_x86_64.deb", Version: "24.1.0.3"},
	}

	// Nothing is both GA and x86_64; selection must fail rather than fall
	// back to any of the above.
	_, err := Select(records, "ga", platform.ArchX8664, PolicyServerOrder, testLogger())
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestSelect_Idempotent(t *testing.T) {
	records := gaCatalog()

	first, err := Select(records, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.NoError(t, err)
	second, err := Select(records, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSelect_VersionPolicySkipsUnparsable(t *testing.T) {
	records := []catalog.PackageRecord{
		{Status: "ga", FileName: "agent_x86_64.deb", Version: "not-a-version"},
		{Status: "ga", FileName: "agent_x86_64.deb", Version: "23.4.1.4"},
	}

	result, err := Select(records, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "23.4.1.4", result.Version)
}

func TestSelect_VersionPolicyAllUnparsable(t *testing.T) {
	records := []catalog.PackageRecord{
		{Status: "ga", FileName: "agent_x86_64.deb", Version: "latest"},
	}

	_, err := Select(records, "ga", platform.ArchX8664, PolicyVersion, testLogger())
	require.ErrorIs(t, err, ErrNoMatch)
}
