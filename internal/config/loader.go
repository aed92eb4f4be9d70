package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadResult is everything CompileCluster/CompileTenantSchema could
// extract from one CUE package directory.
type LoadResult struct {
	Cluster *ClusterConfig
	Tenants []TenantSchema
}

// Load compiles the CUE package rooted at dir into a LoadResult. It fails
// fast: the first compile error aborts the load, since a malformed
// cluster or schema definition must never reach bootstrap.
func Load(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("config: cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config: %s is not a directory", dir)
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("config: no CUE instances found in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("config: loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("config: building CUE value: %w", err)
	}

	result := &LoadResult{}

	clusterVal := value.LookupPath(cue.ParsePath("cluster"))
	if clusterVal.Exists() {
		cluster, err := CompileCluster(clusterVal)
		if err != nil {
			return nil, err
		}
		result.Cluster = cluster
	}

	tenantVal := value.LookupPath(cue.ParsePath("tenant_schema"))
	if tenantVal.Exists() {
		iter, iterErr := tenantVal.Fields()
		if iterErr != nil {
			return nil, fmt.Errorf("config: iterating tenant_schema: %w", iterErr)
		}
		for iter.Next() {
			schema, err := CompileTenantSchema(iter.Value())
			if err != nil {
				return nil, err
			}
			result.Tenants = append(result.Tenants, *schema)
		}
	}

	return result, nil
}
