package types

import "time"

// PeerNode is a head node eligible to host or join the broker cluster
type PeerNode struct {
	Hostname string `json:"hostname" yaml:"hostname"`
}

// ClusterView is the set of broker node names reported by cluster_status
type ClusterView struct {
	Nodes       []string
	RetrievedAt time.Time
}

// Contains reports whether the view lists the given broker node name
func (v ClusterView) Contains(nodeName string) bool {
	for _, n := range v.Nodes {
		if n == nodeName {
			return true
		}
	}
	return false
}

// Step identifies one administrative action of a convergence cycle
type Step string

const (
	StepStatus         Step = "status"
	StepStop           Step = "stop"
	StepReset          Step = "reset"
	StepJoin           Step = "join"
	StepStart          Step = "start"
	StepPolicy         Step = "policy"
	StepPassword       Step = "password"
	StepPlugin         Step = "plugin"
	StepInitCredential Step = "credentials"
	StepRegistry       Step = "registry"
)

// JoinState is the state of a single peer join sequence
type JoinState string

const (
	JoinStateNotMember JoinState = "not_member"
	JoinStateStopping  JoinState = "stopping"
	JoinStateResetting JoinState = "resetting"
	JoinStateJoining   JoinState = "joining"
	JoinStateStarting  JoinState = "starting"
	JoinStateMember    JoinState = "member"
	JoinStateFailed    JoinState = "failed"
)

// StepState maps a join step to the state the sequence is in while it runs
func StepState(step Step) JoinState {
	switch step {
	case StepStop:
		return JoinStateStopping
	case StepReset:
		return JoinStateResetting
	case StepJoin:
		return JoinStateJoining
	case StepStart:
		return JoinStateStarting
	default:
		return JoinStateNotMember
	}
}

// PeerOutcome records what a convergence cycle did for one peer
type PeerOutcome struct {
	Peer          PeerNode
	State         JoinState
	AlreadyMember bool
	FailedStep    Step
	Duration      time.Duration
}
