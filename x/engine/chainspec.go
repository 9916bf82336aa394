package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainSpec describes one network the prover can build inputs for.
type ChainSpec struct {
	Name    string `yaml:"name"     json:"name"`
	ChainID uint64 `yaml:"chain_id" json:"chain_id"`
	RPC     string `yaml:"rpc"      json:"rpc"`
	// BeaconRPC is only set for L1 networks that carry blobs.
	BeaconRPC string `yaml:"beacon_rpc" json:"beacon_rpc,omitempty"`
	// InboxAddress is the L1 contract batches are proposed to (L2 networks only).
	InboxAddress string `yaml:"inbox_address" json:"inbox_address,omitempty"`
	IsTaiko      bool   `yaml:"is_taiko"      json:"is_taiko"`
}

// SupportedChainSpecs is the read-only chain configuration table, keyed by network name.
type SupportedChainSpecs struct {
	byName map[string]ChainSpec
}

type chainSpecFile struct {
	Chains []ChainSpec `yaml:"chains"`
}

// NewSupportedChainSpecs builds the table; names and chain ids must be unique.
func NewSupportedChainSpecs(specs ...ChainSpec) (SupportedChainSpecs, error) {
	byName := make(map[string]ChainSpec, len(specs))
	ids := make(map[uint64]string, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return SupportedChainSpecs{}, fmt.Errorf("chain spec with chain id %d has no name", spec.ChainID)
		}
		if _, exists := byName[name]; exists {
			return SupportedChainSpecs{}, fmt.Errorf("duplicate chain spec %q", name)
		}
		if other, exists := ids[spec.ChainID]; exists {
			return SupportedChainSpecs{}, fmt.Errorf("chain id %d used by both %q and %q", spec.ChainID, other, name)
		}
		spec.Name = name
		byName[name] = spec
		ids[spec.ChainID] = name
	}
	return SupportedChainSpecs{byName: byName}, nil
}

// ParseChainSpecs decodes a YAML document of the form `chains: [...]`.
func ParseChainSpecs(data []byte) (SupportedChainSpecs, error) {
	var file chainSpecFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SupportedChainSpecs{}, fmt.Errorf("decode chain specs: %w", err)
	}
	return NewSupportedChainSpecs(file.Chains...)
}

// LoadChainSpecs reads and parses a chain spec file.
func LoadChainSpecs(path string) (SupportedChainSpecs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SupportedChainSpecs{}, fmt.Errorf("read chain specs %s: %w", path, err)
	}
	return ParseChainSpecs(data)
}

func (s SupportedChainSpecs) GetChainSpec(network string) (ChainSpec, bool) {
	spec, ok := s.byName[network]
	return spec, ok
}

// MustGet returns the spec for network or an ErrUnsupportedNetwork error.
func (s SupportedChainSpecs) MustGet(network string) (ChainSpec, error) {
	spec, ok := s.byName[network]
	if !ok {
		return ChainSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return spec, nil
}

func (s SupportedChainSpecs) GetChainSpecByID(chainID uint64) (ChainSpec, bool) {
	for _, spec := range s.byName {
		if spec.ChainID == chainID {
			return spec, true
		}
	}
	return ChainSpec{}, false
}

// Names returns the configured network names, sorted.
func (s SupportedChainSpecs) Names() []string {
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s SupportedChainSpecs) Len() int {
	return len(s.byName)
}
