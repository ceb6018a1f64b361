package policy

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinQuorum(t *testing.T) {
	tests := []struct {
		peers int
		want  int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{7, 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MinQuorum(tt.peers), "peers=%d", tt.peers)
	}
}

func TestNew(t *testing.T) {
	p, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, "HA", p.Name)
	assert.Equal(t, `^(?!(amq\.|[a-f0-9]{32})).*`, p.Pattern)
	assert.Equal(t, 2, p.MinQuorum)

	// the quorum never reaches the definition
	def, err := p.DefinitionJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"ha-mode": "all"}`, def)

	var decoded Definition
	require.NoError(t, json.Unmarshal([]byte(def), &decoded))
	assert.Equal(t, p.Definition, decoded)
	assert.NotContains(t, def, "2")
}

func TestNewRejectsEmptyCluster(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-2)
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name  string
		match bool
	}{
		{"amq.gen-xyz", false},
		{"amq.direct", false},
		{"0123456789abcdef0123456789abcdef", false},
		{"0123456789abcdef0123456789abcdef.reply", false},
		{"my-queue", true},
		{"amqZZZ", true},
		{"amq", true},
		{"0123456789ABCDEF0123456789ABCDEF", true},
		{"0123456789abcdef", true},
		{"notifications.info", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, Matches(tt.name))
		})
	}
}

func TestPolicyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("quorum is a strict majority", prop.ForAll(
		func(n int) bool {
			q := MinQuorum(n)
			return 2*q > n && q <= n && 2*(q-1) <= n
		},
		gen.IntRange(1, 10000),
	))

	properties.Property("amq. prefixed names are never mirrored", prop.ForAll(
		func(suffix string) bool {
			return !Matches("amq." + suffix)
		},
		gen.AlphaString(),
	))

	properties.Property("names without reserved prefixes are mirrored", prop.ForAll(
		func(name string) bool {
			return Matches("q-" + name)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
