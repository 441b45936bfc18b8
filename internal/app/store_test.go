package app

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/sourcegraph/conc"
)

// checkConsistency asserts that no room is empty and that the conn->rooms
// index mirrors room->members exactly.
func checkConsistency(t *testing.T, s *RoomStoreImpl) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, e := range s.rooms {
		if len(e.members) == 0 {
			t.Fatalf("room %s has no members", id)
		}
		for m := range e.members {
			if _, ok := s.byConn[m][id]; !ok {
				t.Fatalf("index missing %s -> %s", m, id)
			}
		}
	}
	for conn, set := range s.byConn {
		if len(set) == 0 {
			t.Fatalf("empty index entry for %s", conn)
		}
		for id := range set {
			e, ok := s.rooms[id]
			if !ok {
				t.Fatalf("index points %s at missing room %s", conn, id)
			}
			if _, ok := e.members[conn]; !ok {
				t.Fatalf("index says %s in %s but room disagrees", conn, id)
			}
		}
	}
}

func TestCreateRoomAutoJoinsCreator(t *testing.T) {
	s := NewRoomStore()
	id := s.CreateRoom("a")

	if len(id) != domain.DefaultRoomCodeLength {
		t.Fatalf("room id %q has length %d", id, len(id))
	}
	if got := s.MembersOf(id); !reflect.DeepEqual(got, []domain.ConnID{"a"}) {
		t.Fatalf("members = %v, want [a]", got)
	}
	if got := s.RoomsOf("a"); !reflect.DeepEqual(got, []domain.RoomID{id}) {
		t.Fatalf("rooms of a = %v", got)
	}
	checkConsistency(t, s)
}

func TestJoinRoomUnknownDoesNotMutate(t *testing.T) {
	s := NewRoomStore()
	id := s.CreateRoom("a")
	before := s.List()

	added, err := s.JoinRoom("doesnotexist", "c")
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
	if added {
		t.Fatalf("added must be false on failure")
	}
	if got := s.List(); !reflect.DeepEqual(got, before) {
		t.Fatalf("store changed: %v -> %v", before, got)
	}
	if rooms := s.RoomsOf("c"); len(rooms) != 0 {
		t.Fatalf("c should be in no rooms, got %v", rooms)
	}
	if s.Exists("doesnotexist") || !s.Exists(id) {
		t.Fatalf("unexpected existence")
	}
	checkConsistency(t, s)
}

func TestJoinRoomMalformed(t *testing.T) {
	s := NewRoomStore()
	if _, err := s.JoinRoom("", "a"); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
}

func TestJoinRoomTwiceIsIdempotent(t *testing.T) {
	s := NewRoomStore()
	id := s.CreateRoom("a")

	added, err := s.JoinRoom(id, "b")
	if err != nil || !added {
		t.Fatalf("first join: added=%v err=%v", added, err)
	}
	added, err = s.JoinRoom(id, "b")
	if err != nil || added {
		t.Fatalf("second join: added=%v err=%v", added, err)
	}
	if got := len(s.MembersOf(id)); got != 2 {
		t.Fatalf("member count = %d, want 2", got)
	}
}

func TestLeaveRoomDeletesEmptyRoom(t *testing.T) {
	s := NewRoomStore()
	id := s.CreateRoom("a")
	if _, err := s.JoinRoom(id, "b"); err != nil {
		t.Fatal(err)
	}

	if deleted := s.LeaveRoom(id, "b"); deleted {
		t.Fatalf("room deleted while a is still inside")
	}
	if got := s.MembersOf(id); !reflect.DeepEqual(got, []domain.ConnID{"a"}) {
		t.Fatalf("members = %v, want [a]", got)
	}
	if deleted := s.LeaveRoom(id, "a"); !deleted {
		t.Fatalf("room should be deleted with its last member")
	}
	if s.Exists(id) {
		t.Fatalf("room %s still exists", id)
	}
	if _, err := s.JoinRoom(id, "c"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("deleted room must not be joinable, err = %v", err)
	}
	if s.LeaveRoom(id, "a") {
		t.Fatalf("leaving a missing room must be a no-op")
	}
	checkConsistency(t, s)
}

func TestLeaveAll(t *testing.T) {
	s := NewRoomStore()
	solo := s.CreateRoom("a")
	shared := s.CreateRoom("b")
	if _, err := s.JoinRoom(shared, "a"); err != nil {
		t.Fatal(err)
	}

	deps := s.LeaveAll("a")
	if len(deps) != 2 {
		t.Fatalf("departures = %v, want 2", deps)
	}
	for _, d := range deps {
		switch d.RoomID {
		case solo:
			if !d.Deleted {
				t.Fatalf("solo room should be deleted")
			}
		case shared:
			if d.Deleted || !reflect.DeepEqual(d.Remaining, []domain.ConnID{"b"}) {
				t.Fatalf("shared departure = %+v", d)
			}
		default:
			t.Fatalf("unexpected departure %+v", d)
		}
	}
	if rooms := s.RoomsOf("a"); len(rooms) != 0 {
		t.Fatalf("a still in %v", rooms)
	}
	if s.Exists(solo) || !s.Exists(shared) {
		t.Fatalf("unexpected room set %v", s.List())
	}
	if deps := s.LeaveAll("a"); len(deps) != 0 {
		t.Fatalf("second LeaveAll = %v", deps)
	}
	checkConsistency(t, s)
}

func TestPeersDeduplicatesAcrossRooms(t *testing.T) {
	s := NewRoomStore()
	r1 := s.CreateRoom("a")
	r2 := s.CreateRoom("a")
	for _, join := range []struct {
		room domain.RoomID
		conn domain.ConnID
	}{{r1, "b"}, {r2, "b"}, {r2, "c"}} {
		if _, err := s.JoinRoom(join.room, join.conn); err != nil {
			t.Fatal(err)
		}
	}

	if got := s.Peers("a"); !reflect.DeepEqual(got, []domain.ConnID{"b", "c"}) {
		t.Fatalf("peers of a = %v, want [b c]", got)
	}
	if got := s.Peers("c"); !reflect.DeepEqual(got, []domain.ConnID{"a", "b"}) {
		t.Fatalf("peers of c = %v, want [a b]", got)
	}
	if got := s.Peers("nobody"); len(got) != 0 {
		t.Fatalf("peers of unknown conn = %v", got)
	}
}

func TestCreateRoomRetriesOnCollision(t *testing.T) {
	codes := []domain.RoomID{"aaaaaa", "aaaaaa", "aaaaaa", "bbbbbb"}
	calls := 0
	s := NewRoomStore(WithCodeGenerator(func(int) domain.RoomID {
		c := codes[calls]
		calls++
		return c
	}))

	first := s.CreateRoom("a")
	second := s.CreateRoom("b")
	if first != "aaaaaa" || second != "bbbbbb" {
		t.Fatalf("got %q and %q", first, second)
	}
	if calls != 4 {
		t.Fatalf("generator calls = %d, want 4", calls)
	}
}

func TestCreateRoomGrowsCodeAfterRepeatedCollisions(t *testing.T) {
	var lengths []int
	s := NewRoomStore(WithCodeLength(2), WithCodeGenerator(func(n int) domain.RoomID {
		lengths = append(lengths, n)
		if n == 2 {
			return "xx"
		}
		return "yyy"
	}))
	s.CreateRoom("a")
	lengths = nil

	if got := s.CreateRoom("b"); got != "yyy" {
		t.Fatalf("got %q, want yyy", got)
	}
	if len(lengths) != maxCodeAttempts+1 || lengths[maxCodeAttempts] != 3 {
		t.Fatalf("lengths = %v", lengths)
	}
}

func TestListAndGet(t *testing.T) {
	s := NewRoomStore()
	id := s.CreateRoom("a")
	if _, err := s.JoinRoom(id, "b"); err != nil {
		t.Fatal(err)
	}
	info, ok := s.Get(id)
	if !ok || info.ID != id || info.MemberCount != 2 || info.CreatedAt.IsZero() {
		t.Fatalf("info = %+v ok=%v", info, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("missing room found")
	}
	if s.Len() != 1 || len(s.List()) != 1 {
		t.Fatalf("len = %d list = %v", s.Len(), s.List())
	}
}

func TestRandomOperationSequencesStayConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewRoomStore()
	conns := []domain.ConnID{"a", "b", "c", "d", "e"}

	for step := 0; step < 2000; step++ {
		conn := conns[rng.Intn(len(conns))]
		switch rng.Intn(4) {
		case 0:
			s.CreateRoom(conn)
		case 1:
			if rooms := s.List(); len(rooms) > 0 {
				_, _ = s.JoinRoom(rooms[rng.Intn(len(rooms))].ID, conn)
			} else {
				_, _ = s.JoinRoom("nope", conn)
			}
		case 2:
			if rooms := s.RoomsOf(conn); len(rooms) > 0 {
				s.LeaveRoom(rooms[rng.Intn(len(rooms))], conn)
			}
		case 3:
			s.LeaveAll(conn)
			if len(s.RoomsOf(conn)) != 0 {
				t.Fatalf("step %d: %s still has rooms after LeaveAll", step, conn)
			}
		}
		checkConsistency(t, s)
	}
}

func TestConcurrentJoinLeaveKeepsInvariants(t *testing.T) {
	s := NewRoomStore()
	room := s.CreateRoom("owner")

	var wg conc.WaitGroup
	for i := 0; i < 32; i++ {
		conn := domain.ConnID(fmt.Sprintf("c%d", i))
		wg.Go(func() {
			for j := 0; j < 200; j++ {
				if _, err := s.JoinRoom(room, conn); err != nil {
					t.Errorf("join: %v", err)
					return
				}
				_ = s.Peers(conn)
				s.LeaveRoom(room, conn)
				own := s.CreateRoom(conn)
				s.LeaveAll(conn)
				if s.Exists(own) {
					t.Errorf("room %s survived its only member", own)
					return
				}
			}
		})
	}
	wg.Wait()

	checkConsistency(t, s)
	if got := s.MembersOf(room); !reflect.DeepEqual(got, []domain.ConnID{"owner"}) {
		t.Fatalf("members = %v, want [owner]", got)
	}
	if s.Len() != 1 {
		t.Fatalf("rooms = %v", s.List())
	}
}

func TestCodeLengthIsCappedAtMaxRoomID(t *testing.T) {
	s := NewRoomStore(WithCodeLength(40))
	id := s.CreateRoom("a")
	if len(id) != domain.MaxRoomIDLen {
		t.Fatalf("code length = %d, want %d", len(id), domain.MaxRoomIDLen)
	}
	if _, err := domain.ParseRoomID(string(id)); err != nil {
		t.Fatalf("created id must be joinable: %v", err)
	}
	if added, err := s.JoinRoom(id, "b"); err != nil || !added {
		t.Fatalf("join: added=%v err=%v", added, err)
	}
}

func TestCodeGrowthStopsAtMaxRoomID(t *testing.T) {
	var longest int
	calls := 0
	s := NewRoomStore(WithCodeLength(domain.MaxRoomIDLen), WithCodeGenerator(func(n int) domain.RoomID {
		longest = max(longest, n)
		calls++
		if calls <= 3*maxCodeAttempts+1 {
			return "taken"
		}
		return domain.NewRoomCode(n)
	}))
	s.CreateRoom("a")

	if got := s.CreateRoom("b"); len(got) != domain.MaxRoomIDLen {
		t.Fatalf("code %q has length %d", got, len(got))
	}
	if longest != domain.MaxRoomIDLen {
		t.Fatalf("generator asked for length %d", longest)
	}
}
