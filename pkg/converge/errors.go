package converge

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// ErrInvalidPeers is returned when the peer list is empty or omits this node
var ErrInvalidPeers = errors.New("invalid peer list")

// JoinError reports the peer and step at which a join sequence stopped
type JoinError struct {
	Peer string
	Step types.Step
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("cluster join with %s failed at step %s: %v", e.Peer, e.Step, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// PolicyError reports a failed HA policy application
type PolicyError struct {
	Policy string
	Err    error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("step %s: applying policy %s failed: %v", types.StepPolicy, e.Policy, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// PasswordError reports a failed broker password reset
type PasswordError struct {
	User string
	Err  error
}

func (e *PasswordError) Error() string {
	return fmt.Sprintf("step %s: resetting password of %s failed: %v", types.StepPassword, e.User, e.Err)
}

func (e *PasswordError) Unwrap() error {
	return e.Err
}

// StepError reports a failed preparation step outside any join sequence
type StepError struct {
	Step types.Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
