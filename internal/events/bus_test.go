package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan EncoderStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e EncoderStateChangedEvent) { received <- e })
	defer unsub()

	bus.Publish(EncoderStateChangedEvent{State: "running", Timestamp: "2025-01-27T10:30:00Z"})

	select {
	case got := <-received:
		if got.State != "running" {
			t.Errorf("State = %q, want running", got.State)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ViewerEvent, 1)

	unsub := bus.Subscribe(func(e ViewerEvent) { received <- e })
	bus.Publish(ViewerEvent{Action: "connected", Clients: 1})
	<-received

	unsub()
	bus.Publish(ViewerEvent{Action: "disconnected"})
	select {
	case <-received:
		t.Fatal("received event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()
	ticker := make(chan bool, 1)
	cast := make(chan bool, 1)

	defer bus.Subscribe(func(TickerModeChangedEvent) { ticker <- true })()
	defer bus.Subscribe(func(CastStateChangedEvent) { cast <- true })()

	bus.Publish(TickerModeChangedEvent{From: "quotes", To: "news"})
	<-ticker
	select {
	case <-cast:
		t.Fatal("cast subscriber received a ticker event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ConcurrentPublish(_ *testing.T) {
	bus := New()
	const goroutines, perGoroutine = 10, 100
	received := make(chan struct{}, goroutines*perGoroutine)

	defer bus.Subscribe(func(EncoderMetricsEvent) { received <- struct{}{} })()

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				bus.Publish(EncoderMetricsEvent{EventType: "encoder_metrics"})
			}
		}()
	}
	wg.Wait()

	for range goroutines * perGoroutine {
		<-received
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 4)

	defer SubscribeToChannel[CastStateChangedEvent](bus, ch)()
	bus.Publish(CastStateChangedEvent{Running: true})

	select {
	case got := <-ch:
		ev, ok := got.(CastStateChangedEvent)
		if !ok || !ev.Running {
			t.Fatalf("got %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	defer SubscribeToChannel[LogEntryEvent](bus, ch)()

	done := make(chan struct{})
	go func() {
		bus.Publish(LogEntryEvent{Message: "x"})
		close(done)
	}()
	<-done
}
