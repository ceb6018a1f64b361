package converge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/rabbitmq"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/runner"
	"github.com/cuemby/burrow/pkg/storage"
)

func runWithEvents(t *testing.T, fake *runner.Fake, self string, hosts ...string) (*Report, []*events.Event) {
	t.Helper()

	reg, err := registry.NewStatic(hosts)
	require.NoError(t, err)

	broker := events.NewBroker()
	sub := broker.Subscribe(100)

	ctrl, err := NewController(&Config{
		Self:     self,
		Broker:   rabbitmq.NewCtl(fake),
		Registry: reg,
		Store:    storage.NewMemoryStore(),
		Events:   broker,
	})
	require.NoError(t, err)

	report, _ := ctrl.Run(context.Background())
	broker.Close()

	var got []*events.Event
	for e := range sub {
		got = append(got, e)
	}
	return report, got
}

func eventTypes(evs []*events.Event) []events.EventType {
	types := make([]events.EventType, 0, len(evs))
	for _, e := range evs {
		types = append(types, e.Type)
	}
	return types
}

func TestRunPublishesEvents(t *testing.T) {
	sim := newSimBroker("h1", "h2")
	fake := runner.NewFake().Handle(sim.handle)

	report, evs := runWithEvents(t, fake, "h1", "h1", "h2", "h3")

	assert.Equal(t, []events.EventType{
		events.EventCycleStarted,
		events.EventPeerSkipped,
		events.EventPeerJoined,
		events.EventPasswordReset,
		events.EventPolicyApplied,
		events.EventCycleCompleted,
	}, eventTypes(evs))

	for _, e := range evs {
		assert.Equal(t, report.RunID, e.RunID)
	}
	assert.Equal(t, "h2", evs[1].Peer)
	assert.Equal(t, "h3", evs[2].Peer)
	assert.Equal(t, "2", evs[4].Metadata["min_quorum"])
	assert.Equal(t, "1", evs[5].Metadata["joined"])
}

func TestRunPublishesJoinFailure(t *testing.T) {
	fake := runner.NewFake().
		Respond(statusLine, runner.Result{Stdout: statusOutput("h1")}).
		Respond("rabbitmqctl reset", runner.Result{ExitCode: 1, Stderr: "mnesia busy"})

	_, evs := runWithEvents(t, fake, "h1", "h1", "h2")

	assert.Equal(t, []events.EventType{
		events.EventCycleStarted,
		events.EventJoinFailed,
		events.EventCycleFailed,
	}, eventTypes(evs))
	assert.Equal(t, "h2", evs[1].Peer)
	assert.Equal(t, "reset", evs[1].Metadata["step"])
}
