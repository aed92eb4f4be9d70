package config

import (
	"cuelang.org/go/cue"

	"github.com/kimberlite-db/kimberlite/internal/wal"
)

// CompileCluster parses a CUE value shaped like:
//
//	group_name: "region-east"
//	cluster_version: "1.4.0"
//	fsync_policy: "batch"
//	replica: {
//		r0: { address: "10.0.0.1:4000", region: "us-east-1" }
//		r1: { address: "10.0.0.2:4000", region: "us-east-1" }
//	}
//	standby: {}
func CompileCluster(v cue.Value) (*ClusterConfig, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &ClusterConfig{}

	nameVal := v.LookupPath(cue.ParsePath("group_name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "group_name", Message: "group_name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	cfg.GroupName = name

	versionVal := v.LookupPath(cue.ParsePath("cluster_version"))
	if !versionVal.Exists() {
		return nil, &CompileError{Field: "cluster_version", Message: "cluster_version is required", Pos: v.Pos()}
	}
	version, err := versionVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	cfg.ClusterVersion = version

	policyVal := v.LookupPath(cue.ParsePath("fsync_policy"))
	policyStr := "batch"
	if policyVal.Exists() {
		policyStr, err = policyVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}
	policy, parseErr := wal.ParseFsyncPolicy(policyStr)
	if parseErr != nil {
		return nil, &CompileError{Field: "fsync_policy", Message: "must be one of none, batch, record", Pos: policyVal.Pos()}
	}
	cfg.FsyncPolicy = policy

	cfg.Replicas, err = parseReplicaSet(v, "replica")
	if err != nil {
		return nil, err
	}
	if len(cfg.Replicas) == 0 {
		return nil, &CompileError{Field: "replica", Message: "at least one replica is required", Pos: v.Pos()}
	}

	cfg.Standbys, err = parseReplicaSet(v, "standby")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseReplicaSet(v cue.Value, field string) ([]ReplicaConfig, error) {
	var out []ReplicaConfig

	setVal := v.LookupPath(cue.ParsePath(field))
	if !setVal.Exists() {
		return out, nil
	}

	iter, err := setVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		replicaVal := iter.Value()

		addrVal := replicaVal.LookupPath(cue.ParsePath("address"))
		if !addrVal.Exists() {
			return nil, &CompileError{Field: field + "." + name + ".address", Message: "address is required", Pos: replicaVal.Pos()}
		}
		addr, err := addrVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		region := ""
		regionVal := replicaVal.LookupPath(cue.ParsePath("region"))
		if regionVal.Exists() {
			region, err = regionVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		out = append(out, ReplicaConfig{Name: name, Address: addr, Region: region})
	}

	return out, nil
}
