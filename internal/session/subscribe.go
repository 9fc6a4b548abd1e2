package session

import "github.com/landmarkhunt/hunt/internal/round"

const subscriberBuffer = 16

// Subscribe returns a channel receiving the player's snapshots after every change
// and a function that cancels the subscription.
// Slow subscribers miss snapshots rather than block the round.
func (m *Manager) Subscribe(playerID string) (<-chan round.Snapshot, func()) {
	ch := make(chan round.Snapshot, subscriberBuffer)

	m.subMu.Lock()
	if m.subs[playerID] == nil {
		m.subs[playerID] = make(map[chan round.Snapshot]struct{})
	}
	m.subs[playerID][ch] = struct{}{}
	m.subMu.Unlock()

	var once bool
	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(m.subs[playerID], ch)
		if len(m.subs[playerID]) == 0 {
			delete(m.subs, playerID)
		}
		close(ch)
	}
	return ch, cancel
}

func (m *Manager) publish(snap round.Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs[snap.PlayerID] {
		select {
		case ch <- snap:
		default:
		}
	}
}
