package registry

import (
	"errors"
	"strconv"
	"sync"

	"github.com/avelasqz/multichat-back/internal/metrics"
)

// ErrRoomNotActive means no connected participant holds the room open.
var ErrRoomNotActive = errors.New("registry: room is not active")

type activeRoom struct {
	fabric       *Fabric
	participants map[uint32]struct{}
}

// Rooms maps room ids to their active record. A room exists here only
// between the first attach and the last detach; teardown drops the fabric,
// which remaining subscribers observe as end-of-stream.
type Rooms struct {
	mu    sync.Mutex
	rooms map[uint32]*activeRoom
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[uint32]*activeRoom)}
}

// Attach adds the user to the room's participant set, activating the room
// with a fresh fabric if needed, and returns a new subscription on it.
func (r *Rooms) Attach(roomID, userID uint32) (*Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = &activeRoom{
			fabric:       newFabric(),
			participants: make(map[uint32]struct{}),
		}
		r.rooms[roomID] = room
		metrics.ActiveRooms.Inc()
	}
	sub, err := room.fabric.subscribe()
	if err != nil {
		return nil, err
	}
	room.participants[userID] = struct{}{}
	metrics.RoomSubscribers.WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).Inc()
	return sub, nil
}

// Publisher returns the room's fabric for publishing. It fails if no live
// session holds the room open.
func (r *Rooms) Publisher(roomID uint32) (*Fabric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotActive
	}
	return room.fabric, nil
}

// Detach removes the user from the room's participant set. The last
// participant out tears the room down.
func (r *Rooms) Detach(roomID, userID uint32) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, present := room.participants[userID]; present {
		delete(room.participants, userID)
		metrics.RoomSubscribers.WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).Dec()
	}
	empty := len(room.participants) == 0
	if empty {
		delete(r.rooms, roomID)
		metrics.ActiveRooms.Dec()
	}
	r.mu.Unlock()

	// Fabric teardown happens outside the map lock; it takes the fabric's
	// own lock and closing channels can wake subscribers immediately.
	if empty {
		room.fabric.close()
	}
}

// ParticipantsOf returns the user ids currently attached to the room.
func (r *Rooms) ParticipantsOf(roomID uint32) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]uint32, 0, len(room.participants))
	for id := range room.participants {
		ids = append(ids, id)
	}
	return ids
}
