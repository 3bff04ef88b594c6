package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"live-session-service/internal/domain"
)

func TestPresenceCountsConnectionsPerParticipant(t *testing.T) {
	p := newPresence()
	p.attachHost("h1")

	assert.True(t, p.attach("c1", "ann"))
	assert.False(t, p.attach("c2", "ann"), "second tab is not a new arrival")
	assert.True(t, p.attach("c3", "ben"))
	assert.Equal(t, domain.PresenceCounts{TotalParticipants: 3, ActiveParticipants: 2, HostConnected: true}, p.counts(3))

	id, host, last := p.detach("c1")
	assert.Equal(t, "ann", id)
	assert.False(t, host)
	assert.False(t, last)
	assert.True(t, p.online("ann"))

	_, _, last = p.detach("c2")
	assert.True(t, last)
	assert.False(t, p.online("ann"))

	_, host, last = p.detach("h1")
	assert.True(t, host)
	assert.True(t, last)
	assert.False(t, p.counts(3).HostConnected)
	assert.Equal(t, 1, p.size())

	id, host, _ = p.detach("unknown")
	assert.Empty(t, id)
	assert.False(t, host)
}

func TestPresenceRebindsConnection(t *testing.T) {
	p := newPresence()
	p.attach("c1", "ann")
	assert.True(t, p.attach("c1", "ben"))
	assert.False(t, p.online("ann"))

	id, ok := p.participantOf("c1")
	assert.True(t, ok)
	assert.Equal(t, "ben", id)
}
