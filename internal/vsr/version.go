package vsr

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Version is the {major,minor,patch,stage} tuple every Heartbeat and
// PrepareOk carries (spec §4.4 rolling upgrade). Stage distinguishes
// pre-release builds ("", "rc1", "beta2", ...) participating in a
// staged rollout from stable releases.
type Version struct {
	Major, Minor, Patch int
	Stage               string
}

// String renders v as a semver string golang.org/x/mod/semver can parse
// and compare, e.g. "v1.4.0" or "v1.4.0-rc1".
func (v Version) String() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Stage != "" {
		s += "-" + v.Stage
	}
	return s
}

// Compare orders v against other using semver precedence (stable releases
// after their pre-release stages of the same major.minor.patch).
func (v Version) Compare(other Version) int {
	return semver.Compare(v.String(), other.String())
}

// AtLeast reports whether v is >= required.
func (v Version) AtLeast(required Version) bool {
	return v.Compare(required) >= 0
}

// ClusterVersion computes min(replica_versions) over the given set of
// known replica versions (spec §4.4): the effective version gate for
// feature flags, since every member must understand a feature before it
// may be used cluster-wide.
func ClusterVersion(replicaVersions map[uint32]Version) (Version, bool) {
	var min Version
	first := true
	for _, v := range replicaVersions {
		if first || v.Compare(min) < 0 {
			min = v
			first = false
		}
	}
	return min, !first
}

// FeatureEnabled reports whether a feature gated on requiredVersion may be
// used given the current cluster version.
func FeatureEnabled(cluster, required Version) bool {
	return cluster.AtLeast(required)
}
