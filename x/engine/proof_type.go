package engine

import (
	"fmt"
	"strings"
)

// ProofType selects the proving backend.
type ProofType uint8

const (
	ProofTypeNative ProofType = iota
	ProofTypeSp1
	ProofTypeSgx
	ProofTypeRisc0
)

var proofTypeNames = map[ProofType]string{
	ProofTypeNative: "native",
	ProofTypeSp1:    "sp1",
	ProofTypeSgx:    "sgx",
	ProofTypeRisc0:  "risc0",
}

func (p ProofType) String() string {
	if name, ok := proofTypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("proof_type(%d)", uint8(p))
}

// ParseProofType parses the lower-case name of a proof type.
func ParseProofType(s string) (ProofType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for pt, name := range proofTypeNames {
		if name == s {
			return pt, nil
		}
	}
	return 0, fmt.Errorf("unknown proof type %q", s)
}

func (p ProofType) MarshalText() ([]byte, error) {
	if _, ok := proofTypeNames[p]; !ok {
		return nil, fmt.Errorf("unknown proof type %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *ProofType) UnmarshalText(text []byte) error {
	pt, err := ParseProofType(string(text))
	if err != nil {
		return err
	}
	*p = pt
	return nil
}
