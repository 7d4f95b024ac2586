package socket

import (
	"testing"

	"github.com/oopscheckmate/realtime/pkg/models"
)

func TestDispatcher_DeliversInRegistrationOrder(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var order []string
	d.On(models.EventNewMessage, func(models.Event) { order = append(order, "first") })
	d.On(models.EventNewMessage, func(models.Event) { order = append(order, "second") })

	d.Dispatch(models.MessageEvent{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestDispatcher_PanickingListenerDoesNotBlockSiblings(t *testing.T) {
	d := NewDispatcher(nil, nil)

	secondRan := false
	d.On(models.EventNewMessage, func(models.Event) { panic("listener bug") })
	d.On(models.EventNewMessage, func(models.Event) { secondRan = true })

	d.Dispatch(models.MessageEvent{})

	if !secondRan {
		t.Error("second listener should run despite first panicking")
	}
}

func TestDispatcher_CancelRemovesOnlyThatHandler(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var aCount, bCount int
	subA := d.On(models.EventUserOnline, func(models.Event) { aCount++ })
	d.On(models.EventUserOnline, func(models.Event) { bCount++ })

	d.Dispatch(models.PresenceEvent{UserID: "1", Online: true})
	subA.Cancel()
	d.Dispatch(models.PresenceEvent{UserID: "2", Online: true})

	if aCount != 1 {
		t.Errorf("canceled handler ran %d times, want 1", aCount)
	}
	if bCount != 2 {
		t.Errorf("remaining handler ran %d times, want 2", bCount)
	}
}

func TestDispatcher_CancelIsIdempotent(t *testing.T) {
	d := NewDispatcher(nil, nil)

	sub := d.On(models.EventUserOnline, func(models.Event) {})
	sub.Cancel()
	sub.Cancel()

	if got := d.Count(models.EventUserOnline); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}

func TestDispatcher_HandlerMayCancelDuringDispatch(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var sub2 Subscription
	var ran []int
	d.On(models.EventNewMessage, func(models.Event) {
		ran = append(ran, 1)
		sub2.Cancel()
	})
	sub2 = d.On(models.EventNewMessage, func(models.Event) { ran = append(ran, 2) })

	// First dispatch iterates a snapshot: handler 2 still runs this round.
	d.Dispatch(models.MessageEvent{})
	if len(ran) != 2 {
		t.Fatalf("first dispatch ran %d handlers, want 2", len(ran))
	}

	d.Dispatch(models.MessageEvent{})
	if len(ran) != 3 {
		t.Errorf("second dispatch ran %d handlers total, want 3", len(ran))
	}
}

func TestDispatcher_EventTypesAreIndependent(t *testing.T) {
	d := NewDispatcher(nil, nil)

	messageRan := false
	d.On(models.EventNewMessage, func(models.Event) { messageRan = true })

	d.Dispatch(models.PresenceEvent{UserID: "1", Online: true})

	if messageRan {
		t.Error("new_message handler should not receive user_online events")
	}
}

func TestDispatcher_Total(t *testing.T) {
	d := NewDispatcher(nil, nil)

	d.On(models.EventNewMessage, func(models.Event) {})
	sub := d.On(models.EventUserOffline, func(models.Event) {})

	if got := d.Total(); got != 2 {
		t.Errorf("Total = %d, want 2", got)
	}
	sub.Cancel()
	if got := d.Total(); got != 1 {
		t.Errorf("Total after cancel = %d, want 1", got)
	}
}
