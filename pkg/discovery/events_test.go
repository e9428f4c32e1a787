package discovery

import "testing"

func TestEventBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	topic := NewTopic([]byte{1, 2, 3})
	peer := NewPeer("10.0.0.1", 4000)
	bus.PublishPeer(topic, peer)

	select {
	case ev := <-ch:
		if ev.Kind != EventPeer || ev.Topic != topic || ev.Peer != peer {
			t.Errorf("got %+v, want an EventPeer for %v/%v", ev, topic, peer)
		}
	default:
		t.Fatal("expected a buffered event to be immediately available")
	}
}

func TestEventBus_PublishFanOutsToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Event{Kind: EventListening})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Kind != EventListening {
				t.Errorf("subscriber %d got Kind=%v, want EventListening", i, ev.Kind)
			}
		default:
			t.Fatalf("subscriber %d did not receive the published event", i)
		}
	}
}

func TestEventBus_CancelStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe()
	cancel()

	bus.Publish(Event{Kind: EventClose})

	if _, ok := <-ch; ok {
		t.Fatal("expected the channel to be closed after cancel")
	}
}

func TestEventBus_FullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewEventBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	// The subscriber never drains; Publish must still return promptly
	// rather than blocking once the channel's buffer fills.
	for i := 0; i < 64; i++ {
		bus.Publish(Event{Kind: EventError})
	}
}
