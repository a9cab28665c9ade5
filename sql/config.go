// Copyright 2024 The aggexec Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sql

import (
	"os"

	"gopkg.in/yaml.v2"
)

// debugEnvFlag lets a developer flip on spill/reload diagnostic logging
// without touching session config, the same way engine.go's experimentalFlag
// gates ExperimentalGMS from an environment variable.
const debugEnvFlag = "AGGEXEC_HYBRID_HASH_AGG_DEBUG"

// AggregateConfig holds the four session-scoped knobs named in spec §6. It
// is threaded explicitly through the aggregator rather than read from
// process-wide globals, per the redesign note in spec §9 ("Global mutable
// state").
type AggregateConfig struct {
	// WorkMem is the per-operator memory budget, in bytes, for sorters and
	// the in-memory hash table.
	WorkMem int64 `yaml:"work_mem"`
	// EnableHybridHashAgg toggles spill-to-disk behavior; when false, hash
	// aggregation that would overflow WorkMem fails instead.
	EnableHybridHashAgg bool `yaml:"enable_hybrid_hash_agg"`
	// DefaultHashAggNBatches is B in spec §4.4's sizing formula.
	DefaultHashAggNBatches int `yaml:"default_hashagg_nbatches"`
	// HybridHashAggDebug emits logrus diagnostics at every spill/reload
	// boundary.
	HybridHashAggDebug bool `yaml:"hybrid_hash_agg_debug"`
}

// DefaultAggregateConfig returns the configuration used when a session
// supplies none of its own.
func DefaultAggregateConfig() *AggregateConfig {
	return &AggregateConfig{
		WorkMem:                64 << 20, // 64MiB
		EnableHybridHashAgg:    true,
		DefaultHashAggNBatches: 32,
		HybridHashAggDebug:     os.Getenv(debugEnvFlag) != "",
	}
}

// LoadAggregateConfig parses a YAML document (as produced by a session
// config file) into an AggregateConfig, starting from the defaults.
func LoadAggregateConfig(data []byte) (*AggregateConfig, error) {
	cfg := DefaultAggregateConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
