package config

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/wal"
)

func TestCompileClusterBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		cluster: {
			group_name:      "region-east"
			cluster_version: "1.4.0"
			fsync_policy:    "record"
			replica: {
				r0: { address: "10.0.0.1:4000", region: "us-east-1" }
				r1: { address: "10.0.0.2:4000", region: "us-east-1" }
				r2: { address: "10.0.0.3:4000", region: "us-east-1" }
			}
			standby: {
				s0: { address: "10.0.0.4:4000", region: "us-east-1" }
			}
		}
	`)
	require.NoError(t, v.Err())

	clusterVal := v.LookupPath(cue.ParsePath("cluster"))
	cfg, err := CompileCluster(clusterVal)
	require.NoError(t, err)

	require.Equal(t, "region-east", cfg.GroupName)
	require.Equal(t, "1.4.0", cfg.ClusterVersion)
	require.Equal(t, wal.FsyncPerRecord, cfg.FsyncPolicy)
	require.Len(t, cfg.Replicas, 3)
	require.Len(t, cfg.Standbys, 1)
}

func TestCompileClusterRequiresGroupName(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		cluster: {
			cluster_version: "1.0.0"
			replica: { r0: { address: "10.0.0.1:4000" } }
		}
	`)
	require.NoError(t, v.Err())

	clusterVal := v.LookupPath(cue.ParsePath("cluster"))
	_, err := CompileCluster(clusterVal)
	require.Error(t, err)
}

func TestCompileClusterRejectsUnknownFsyncPolicy(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		cluster: {
			group_name:      "x"
			cluster_version: "1.0.0"
			fsync_policy:    "whenever"
			replica: { r0: { address: "10.0.0.1:4000" } }
		}
	`)
	require.NoError(t, v.Err())

	clusterVal := v.LookupPath(cue.ParsePath("cluster"))
	_, err := CompileCluster(clusterVal)
	require.Error(t, err)
}
