package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// after this many consecutive collisions the code grows by one character,
// up to domain.MaxRoomIDLen
const maxCodeAttempts = 8

type roomEntry struct {
	room    domain.Room
	members map[domain.ConnID]struct{}
}

// RoomStoreImpl is a threadsafe in-memory room store. One mutex covers both
// the room->members map and the conn->rooms index, so they never disagree.
type RoomStoreImpl struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*roomEntry
	byConn map[domain.ConnID]map[domain.RoomID]struct{}

	codeLen int
	gen     func(n int) domain.RoomID
	now     func() time.Time
	metrics *metrics.Metrics
}

type StoreOption func(*RoomStoreImpl)

func WithCodeLength(n int) StoreOption {
	return func(s *RoomStoreImpl) {
		if n > 0 {
			s.codeLen = min(n, domain.MaxRoomIDLen)
		}
	}
}

func WithCodeGenerator(gen func(n int) domain.RoomID) StoreOption {
	return func(s *RoomStoreImpl) { s.gen = gen }
}

func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *RoomStoreImpl) { s.metrics = m }
}

func NewRoomStore(opts ...StoreOption) *RoomStoreImpl {
	s := &RoomStoreImpl{
		rooms:   make(map[domain.RoomID]*roomEntry),
		byConn:  make(map[domain.ConnID]map[domain.RoomID]struct{}),
		codeLen: domain.DefaultRoomCodeLength,
		gen:     domain.NewRoomCode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ core.RoomStore = (*RoomStoreImpl)(nil)

func (s *RoomStoreImpl) CreateRoom(creator domain.ConnID) domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.freshIDLocked()
	s.rooms[id] = &roomEntry{
		room:    domain.Room{ID: id, CreatedAt: s.now()},
		members: map[domain.ConnID]struct{}{creator: {}},
	}
	s.indexLocked(creator, id)
	s.metrics.SetRooms(len(s.rooms))

	log.Info().Str("module", "app.store").Str("room", string(id)).Str("conn", string(creator)).Msg("room created")
	return id
}

func (s *RoomStoreImpl) freshIDLocked() domain.RoomID {
	n := s.codeLen
	for attempt := 1; ; attempt++ {
		id := s.gen(n)
		if _, taken := s.rooms[id]; id != "" && !taken {
			return id
		}
		log.Warn().Str("module", "app.store").Str("room", string(id)).Int("attempt", attempt).Msg("room code collision")
		if attempt%maxCodeAttempts == 0 && n < domain.MaxRoomIDLen {
			n++
		}
	}
}

func (s *RoomStoreImpl) JoinRoom(room domain.RoomID, conn domain.ConnID) (bool, error) {
	if room == "" || conn == "" {
		return false, domain.ErrMalformedInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[room]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if _, already := e.members[conn]; already {
		return false, nil
	}
	e.members[conn] = struct{}{}
	s.indexLocked(conn, room)

	log.Info().Str("module", "app.store").Str("room", string(room)).Str("conn", string(conn)).Int("members", len(e.members)).Msg("member added")
	return true, nil
}

func (s *RoomStoreImpl) LeaveRoom(room domain.RoomID, conn domain.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.removeLocked(room, conn)
	return ok && d.Deleted
}

func (s *RoomStoreImpl) LeaveAll(conn domain.ConnID) []core.Departure {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := s.byConn[conn]
	out := make([]core.Departure, 0, len(rooms))
	for id := range rooms {
		if d, ok := s.removeLocked(id, conn); ok {
			out = append(out, d)
		}
	}
	return out
}

// removeLocked drops conn from room and deletes the room when it empties.
func (s *RoomStoreImpl) removeLocked(room domain.RoomID, conn domain.ConnID) (core.Departure, bool) {
	e, ok := s.rooms[room]
	if !ok {
		return core.Departure{}, false
	}
	if _, member := e.members[conn]; !member {
		return core.Departure{}, false
	}
	delete(e.members, conn)
	if set := s.byConn[conn]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(s.byConn, conn)
		}
	}

	d := core.Departure{RoomID: room}
	if len(e.members) == 0 {
		delete(s.rooms, room)
		s.metrics.SetRooms(len(s.rooms))
		d.Deleted = true
		log.Info().Str("module", "app.store").Str("room", string(room)).Msg("room deleted")
	} else {
		d.Remaining = memberList(e.members)
	}
	log.Info().Str("module", "app.store").Str("room", string(room)).Str("conn", string(conn)).Msg("member removed")
	return d, true
}

func (s *RoomStoreImpl) indexLocked(conn domain.ConnID, room domain.RoomID) {
	set, ok := s.byConn[conn]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		s.byConn[conn] = set
	}
	set[room] = struct{}{}
}

func (s *RoomStoreImpl) MembersOf(room domain.RoomID) []domain.ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[room]
	if !ok {
		return nil
	}
	return memberList(e.members)
}

func (s *RoomStoreImpl) RoomsOf(conn domain.ConnID) []domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byConn[conn]
	out := make([]domain.RoomID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *RoomStoreImpl) Peers(conn domain.ConnID) []domain.ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.ConnID]struct{})
	for id := range s.byConn[conn] {
		e, ok := s.rooms[id]
		if !ok {
			continue
		}
		for m := range e.members {
			if m != conn {
				seen[m] = struct{}{}
			}
		}
	}
	return memberList(seen)
}

func (s *RoomStoreImpl) Exists(room domain.RoomID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

func (s *RoomStoreImpl) Get(room domain.RoomID) (core.RoomInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[room]
	if !ok {
		return core.RoomInfo{}, false
	}
	return infoOf(e), true
}

func (s *RoomStoreImpl) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *RoomStoreImpl) List() []core.RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(s.rooms))
	for _, e := range s.rooms {
		out = append(out, infoOf(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func infoOf(e *roomEntry) core.RoomInfo {
	return core.RoomInfo{ID: e.room.ID, MemberCount: len(e.members), CreatedAt: e.room.CreatedAt}
}

func memberList(set map[domain.ConnID]struct{}) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
