package app

import "live-session-service/internal/domain"

// presence maps live connections to participants and counts them.
// It is owned by the session loop and never shared.
type presence struct {
	hosts map[string]struct{}
	conns map[string]string
	refs  map[string]int
}

func newPresence() *presence {
	return &presence{
		hosts: make(map[string]struct{}),
		conns: make(map[string]string),
		refs:  make(map[string]int),
	}
}

func (p *presence) attachHost(connID string) {
	p.hosts[connID] = struct{}{}
}

// attach binds connID to a participant and reports whether it is the participant's first live connection.
func (p *presence) attach(connID, participantID string) bool {
	if prev, ok := p.conns[connID]; ok {
		if prev == participantID {
			return false
		}
		p.release(prev)
	}
	p.conns[connID] = participantID
	p.refs[participantID]++
	return p.refs[participantID] == 1
}

// detach removes connID. last is true when a participant lost its final connection.
func (p *presence) detach(connID string) (participantID string, host, last bool) {
	if _, ok := p.hosts[connID]; ok {
		delete(p.hosts, connID)
		return "", true, len(p.hosts) == 0
	}
	participantID, ok := p.conns[connID]
	if !ok {
		return "", false, false
	}
	delete(p.conns, connID)
	return participantID, false, p.release(participantID)
}

func (p *presence) release(participantID string) bool {
	p.refs[participantID]--
	if p.refs[participantID] <= 0 {
		delete(p.refs, participantID)
		return true
	}
	return false
}

func (p *presence) participantOf(connID string) (string, bool) {
	id, ok := p.conns[connID]
	return id, ok
}

func (p *presence) isHost(connID string) bool {
	_, ok := p.hosts[connID]
	return ok
}

func (p *presence) online(participantID string) bool {
	return p.refs[participantID] > 0
}

func (p *presence) size() int {
	return len(p.hosts) + len(p.conns)
}

func (p *presence) counts(totalParticipants int) domain.PresenceCounts {
	return domain.PresenceCounts{
		TotalParticipants:  totalParticipants,
		ActiveParticipants: len(p.refs),
		HostConnected:      len(p.hosts) > 0,
	}
}
