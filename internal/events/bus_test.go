package events

import (
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	first, err := bus.Subscribe(4)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	second, err := bus.Subscribe(4)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.Publish(Envelope{Kind: KindConnected, Connected: &Connected{}})

	for _, sub := range []*Subscription{first, second} {
		select {
		case env := <-sub.Events():
			if env.Kind != KindConnected {
				t.Fatalf("unexpected kind %q", env.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for delivery")
		}
	}
}

func TestBusSaturatedSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	slow, err := bus.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	healthy, err := bus.Subscribe(8)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//1.- The slow subscriber never drains; publishing must still complete.
	for i := 0; i < 5; i++ {
		bus.Publish(Envelope{Kind: KindServerUpdate, ServerUpdate: &ServerUpdate{}})
	}

	delivered := 0
	for delivered < 5 {
		select {
		case <-healthy.Events():
			delivered++
		case <-time.After(time.Second):
			t.Fatalf("healthy subscriber starved after %d deliveries", delivered)
		}
	}
	if bus.Dropped() != 4 {
		t.Fatalf("expected 4 dropped deliveries, got %d", bus.Dropped())
	}
	_ = slow
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sub.Close()
	sub.Close()

	if _, open := <-sub.Events(); open {
		t.Fatalf("expected channel closed after unsubscribe")
	}

	//1.- Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(Envelope{Kind: KindConnected, Connected: &Connected{}})
}

func TestPublishEmptyKindIsIgnored(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	bus.Publish(Envelope{})
	select {
	case env := <-sub.Events():
		t.Fatalf("unexpected delivery %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseDuringPublishDoesNotPanic(t *testing.T) {
	bus := NewBus()
	subs := make([]*Subscription, 0, 50)
	for i := 0; i < 50; i++ {
		sub, err := bus.Subscribe(1)
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		subs = append(subs, sub)
	}

	//1.- Hammer publish while every subscriber detaches concurrently; a send
	// racing a channel close would panic the publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bus.Publish(Envelope{Kind: KindPlayerUpdate, PlayerUpdate: &PlayerUpdate{TotalPlayers: i}})
		}
	}()
	for _, sub := range subs {
		go sub.Close()
	}
	<-done
}
