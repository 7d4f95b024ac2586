package presence

import (
	"reflect"
	"testing"
	"time"

	"github.com/oopscheckmate/realtime/pkg/models"
)

func TestTracker_OnlineThenOffline(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOnline("42")
	if !tr.IsOnline("42") {
		t.Fatal("user 42 should be online after user_online")
	}

	tr.SetOffline("42")
	if tr.IsOnline("42") {
		t.Error("user 42 should be offline after user_offline")
	}
	if _, ok := tr.LastSeen("42"); !ok {
		t.Error("going offline should start a last-seen timestamp")
	}
}

func TestTracker_SnapshotFillsLastSeenForOfflineUser(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOnline("42")
	tr.SetOffline("42")

	seen := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	tr.ApplySnapshot(models.StatusSnapshot{
		"42": {Online: false, LastSeen: &seen},
	})

	got, ok := tr.LastSeen("42")
	if !ok || !got.Equal(seen) {
		t.Errorf("LastSeen = %v, %v; want %v, true", got, ok, seen)
	}
}

func TestTracker_SnapshotNeverEvictsOnlineUser(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOnline("42")

	// A poll snapshot can lag a user_online push. It must not win.
	seen := time.Now().Add(-time.Minute)
	tr.ApplySnapshot(models.StatusSnapshot{
		"42": {Online: false, LastSeen: &seen},
	})

	if !tr.IsOnline("42") {
		t.Error("stale snapshot evicted a push-online user")
	}
	if _, ok := tr.LastSeen("42"); ok {
		t.Error("online users must not report a last-seen timestamp")
	}
}

func TestTracker_SnapshotDoesNotAddOnlineUsers(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.ApplySnapshot(models.StatusSnapshot{
		"7": {Online: true},
	})

	if tr.IsOnline("7") {
		t.Error("only push events may add to the online set")
	}
}

func TestTracker_OnlineUsersSorted(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOnline("9")
	tr.SetOnline("12")
	tr.SetOnline("3")

	got := tr.OnlineUsers()
	want := []string{"12", "3", "9"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("OnlineUsers = %v, want %v", got, want)
	}
}

func TestTracker_DuplicateEventsAreIdempotent(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOnline("42")
	tr.SetOnline("42")
	if got := tr.OnlineUsers(); len(got) != 1 {
		t.Errorf("OnlineUsers = %v, want single entry", got)
	}

	tr.SetOffline("42")
	tr.SetOffline("42")
	if tr.IsOnline("42") {
		t.Error("user should stay offline")
	}
}

func TestTracker_OfflineForUnknownUserNoLastSeen(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOffline("ghost")
	if _, ok := tr.LastSeen("ghost"); ok {
		t.Error("user_offline for an unknown user should not invent a last-seen")
	}
}

func TestTracker_ResetClearsState(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.SetOnline("1")
	tr.SetOnline("2")
	tr.SetOffline("2")
	tr.Reset()

	if got := tr.OnlineUsers(); len(got) != 0 {
		t.Errorf("OnlineUsers after Reset = %v, want empty", got)
	}
	if _, ok := tr.LastSeen("2"); ok {
		t.Error("Reset should drop last-seen records")
	}
}

func TestTracker_OnChangeFiresAndDeregisters(t *testing.T) {
	tr := NewTracker(nil, nil)

	var calls int
	cancel := tr.OnChange(func() { calls++ })

	tr.SetOnline("1")
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}

	cancel()
	cancel()
	tr.SetOffline("1")
	if calls != 1 {
		t.Errorf("handler ran %d times after cancel, want 1", calls)
	}
}
