package registry

import (
	"errors"
	"sync"
)

var (
	// ErrAddrInUse means a connection address is already bound to a user.
	ErrAddrInUse = errors.New("registry: connection address already registered")
	// ErrDuplicateLogin means the user already has a live login.
	ErrDuplicateLogin = errors.New("registry: user already logged in")
)

// Presence tracks which user a connection belongs to and which rooms each
// logged-in user subscribed to at login. Both maps are conflict-as-error:
// a second binding for the same address or user is an invariant violation,
// not a merge.
type Presence struct {
	connMu      sync.Mutex
	connections map[string]uint32 // remote addr -> user id

	roomsMu   sync.Mutex
	userRooms map[uint32][]uint32
}

func NewPresence() *Presence {
	return &Presence{
		connections: make(map[string]uint32),
		userRooms:   make(map[uint32][]uint32),
	}
}

// IsAddrRegistered reports whether the connection address is already bound.
func (p *Presence) IsAddrRegistered(addr string) bool {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	_, ok := p.connections[addr]
	return ok
}

// RegisterConnection binds a connection address to a user id.
func (p *Presence) RegisterConnection(addr string, userID uint32) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if _, ok := p.connections[addr]; ok {
		return ErrAddrInUse
	}
	p.connections[addr] = userID
	return nil
}

// RegisterRooms records the user's room set, loaded once from the durable
// participant table at login.
func (p *Presence) RegisterRooms(userID uint32, roomIDs []uint32) error {
	p.roomsMu.Lock()
	defer p.roomsMu.Unlock()
	if _, ok := p.userRooms[userID]; ok {
		return ErrDuplicateLogin
	}
	rooms := make([]uint32, len(roomIDs))
	copy(rooms, roomIDs)
	p.userRooms[userID] = rooms
	return nil
}

// RoomsOf returns the room set recorded for the user at login.
func (p *Presence) RoomsOf(userID uint32) ([]uint32, bool) {
	p.roomsMu.Lock()
	defer p.roomsMu.Unlock()
	rooms, ok := p.userRooms[userID]
	if !ok {
		return nil, false
	}
	out := make([]uint32, len(rooms))
	copy(out, rooms)
	return out, true
}

// InRoom reports whether the user's login-time room set contains roomID.
func (p *Presence) InRoom(userID, roomID uint32) bool {
	p.roomsMu.Lock()
	defer p.roomsMu.Unlock()
	for _, r := range p.userRooms[userID] {
		if r == roomID {
			return true
		}
	}
	return false
}

// Disconnect removes the connection binding and the user's room set,
// returning what was removed so the caller can detach the user from each
// room. The maps are touched one at a time, never both under lock.
func (p *Presence) Disconnect(addr string) (userID uint32, roomIDs []uint32, ok bool) {
	p.connMu.Lock()
	userID, ok = p.connections[addr]
	if ok {
		delete(p.connections, addr)
	}
	p.connMu.Unlock()
	if !ok {
		return 0, nil, false
	}

	p.roomsMu.Lock()
	roomIDs = p.userRooms[userID]
	delete(p.userRooms, userID)
	p.roomsMu.Unlock()
	return userID, roomIDs, true
}
