package terminal

import (
	"bytes"
	"sync"
	"testing"
)

func TestHubBacklogPrime(t *testing.T) {
	h := newHub()

	payload := bytes.Repeat([]byte("A"), 60_000)
	const step = 4096
	for i := 0; i < len(payload); i += step {
		end := i + step
		if end > len(payload) {
			end = len(payload)
		}
		h.publish(payload[i:end])
	}

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	primed := <-sub.Chunks
	if len(primed) != maxBacklog {
		t.Fatalf("backlog prime = %d bytes, want %d", len(primed), maxBacklog)
	}
	if !bytes.Equal(primed, bytes.Repeat([]byte("A"), maxBacklog)) {
		t.Fatal("backlog prime contains unexpected bytes")
	}
}

func TestHubSubscribeEmptyBacklog(t *testing.T) {
	h := newHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	h.publish([]byte("hello"))
	select {
	case chunk := <-sub.Chunks:
		if string(chunk) != "hello" {
			t.Fatalf("got %q, want %q", chunk, "hello")
		}
	default:
		t.Fatal("expected the fresh publish to be immediately available")
	}
}

func TestHubOrderingPerSubscriber(t *testing.T) {
	h := newHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	want := []string{"one", "two", "three"}
	for _, w := range want {
		h.publish([]byte(w))
	}

	for _, w := range want {
		got := <-sub.Chunks
		if string(got) != w {
			t.Fatalf("got %q, want %q", got, w)
		}
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newHub()
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	h.publish([]byte("after unsubscribe"))

	select {
	case _, ok := <-sub.Chunks:
		if ok {
			t.Fatal("unsubscribed subscriber should not receive further chunks")
		}
	default:
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestHubLastSubscriberRemovalKeepsFilling(t *testing.T) {
	h := newHub()
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	// Removing the last subscriber must not panic or block future publish.
	h.publish([]byte("still running"))

	sub2 := h.Subscribe()
	defer h.Unsubscribe(sub2)
	primed := <-sub2.Chunks
	if string(primed) != "still running" {
		t.Fatalf("got %q, want backlog to include bytes published with zero subscribers", primed)
	}
}

func TestHubConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	h := newHub()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := h.Subscribe()
			for range sub.Chunks {
			}
		}()
	}

	for i := 0; i < 200; i++ {
		h.publish([]byte("x"))
	}
	h.closeAll()
	wg.Wait()
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := newHub()
	sub := h.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberChanSize+10; i++ {
			h.publish([]byte{byte(i)})
		}
	}()

	<-done // publish must complete even though sub is never read from

	select {
	case <-sub.Done():
	default:
		t.Fatal("overflowing subscriber should have been dropped")
	}
}
