package policy

import (
	"encoding/json"
	"fmt"

	"github.com/dlclark/regexp2"
)

const (
	// Name is the cluster-wide mirroring policy name
	Name = "HA"

	// Pattern matches every queue and exchange name except broker-internal
	// amq.* names and 32-hex-character generated names
	Pattern = `^(?!(amq\.|[a-f0-9]{32})).*`

	// ModeAll mirrors to every node of the cluster
	ModeAll = "all"
)

var compiled = regexp2.MustCompile(Pattern, regexp2.None)

// Definition is the policy body handed to set_policy
type Definition struct {
	HAMode string `json:"ha-mode"`
}

// HAPolicy is the broker policy applied by every convergence cycle
type HAPolicy struct {
	Name       string
	Pattern    string
	Definition Definition

	// MinQuorum is derived from the head node count. It is reported but not
	// part of Definition, which always mirrors to all nodes.
	MinQuorum int
}

// MinQuorum returns floor(peerCount/2) + 1
func MinQuorum(peerCount int) int {
	return peerCount/2 + 1
}

// New builds the HA policy for a cluster of peerCount head nodes
func New(peerCount int) (HAPolicy, error) {
	if peerCount < 1 {
		return HAPolicy{}, fmt.Errorf("peer count must be at least 1, got %d", peerCount)
	}
	return HAPolicy{
		Name:       Name,
		Pattern:    Pattern,
		Definition: Definition{HAMode: ModeAll},
		MinQuorum:  MinQuorum(peerCount),
	}, nil
}

// DefinitionJSON renders the definition argument of set_policy in the
// operator-facing form `{"ha-mode": "all"}`
func (p HAPolicy) DefinitionJSON() (string, error) {
	mode, err := json.Marshal(p.Definition.HAMode)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy definition: %w", err)
	}
	return `{"ha-mode": ` + string(mode) + `}`, nil
}

// Matches reports whether a queue or exchange name falls under the policy
func Matches(name string) bool {
	ok, err := compiled.MatchString(name)
	return err == nil && ok
}
