package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/avsync/internal/media"
)

func TestPacketQueueFIFO(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(NewQuit())

	for i := range 100 {
		if err := q.Put(videoPacket(time.Duration(i)*time.Millisecond, i+1)); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if q.Len() != 100 {
		t.Errorf("len: got %d, want 100", q.Len())
	}
	if q.Size() != 5050 {
		t.Errorf("size: got %d, want 5050", q.Size())
	}

	for i := range 100 {
		pkt, err := q.Get(false)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if pkt.Size() != i+1 {
			t.Fatalf("packet %d: got size %d, want %d", i, pkt.Size(), i+1)
		}
	}
	if q.Size() != 0 || q.Len() != 0 {
		t.Errorf("drained queue: size %d len %d", q.Size(), q.Len())
	}
}

func TestPacketQueueNonBlockingEmpty(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(NewQuit())

	_, err := q.Get(false)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("got %v, want ErrEmpty", err)
	}
}

func TestPacketQueueBlockingGetWakesOnPut(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(NewQuit())

	got := make(chan media.Packet, 1)
	go func() {
		pkt, err := q.Get(true)
		if err == nil {
			got <- pkt
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Put(videoPacket(time.Second, 7)); err != nil {
		t.Fatal(err)
	}

	select {
	case pkt := <-got:
		if pkt.PTS != time.Second {
			t.Errorf("pts: got %v, want 1s", pkt.PTS)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Get did not wake on Put")
	}
}

func TestPacketQueueCancelWakesGet(t *testing.T) {
	t.Parallel()
	quit := NewQuit()
	q := NewPacketQueue(quit)

	done := make(chan error, 1)
	go func() {
		_, err := q.Get(true)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	quit.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("got %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Get did not wake on cancel")
	}

	if err := q.Put(videoPacket(0, 1)); !errors.Is(err, ErrCancelled) {
		t.Errorf("put after cancel: got %v, want ErrCancelled", err)
	}
}

func TestPacketQueueFlush(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(NewQuit())

	for range 3 {
		_ = q.Put(videoPacket(0, 10))
	}
	q.Flush()

	if q.Size() != 0 || q.Len() != 0 {
		t.Errorf("after flush: size %d len %d", q.Size(), q.Len())
	}
	if _, err := q.Get(false); !errors.Is(err, ErrEmpty) {
		t.Errorf("get after flush: got %v, want ErrEmpty", err)
	}
}

func TestPacketQueueWaitBelow(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(NewQuit())
	_ = q.Put(videoPacket(0, 100))

	done := make(chan error, 1)
	go func() {
		done <- q.WaitBelow(context.Background(), 50)
	}()

	select {
	case <-done:
		t.Fatal("WaitBelow returned while queue was above limit")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := q.Get(false); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitBelow did not wake on drain")
	}
}

func TestPacketQueueWaitBelowTimeout(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(NewQuit())
	_ = q.Put(videoPacket(0, 100))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.WaitBelow(ctx, 50); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestPictureQueueBounded(t *testing.T) {
	t.Parallel()
	q := NewPictureQueue(1, NewQuit())

	if err := q.Push(&media.Picture{PTS: 1}); err != nil {
		t.Fatal(err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(&media.Picture{PTS: 2})
	}()

	select {
	case <-pushed:
		t.Fatal("Push into a full queue did not block")
	case <-time.After(20 * time.Millisecond):
	}
	if q.Len() != 1 {
		t.Errorf("len: got %d, want 1", q.Len())
	}

	pic, ok := q.Pop()
	if !ok || pic.PTS != 1 {
		t.Fatalf("pop: got %v %v, want pts 1", pic, ok)
	}

	select {
	case err := <-pushed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not release the blocked producer")
	}

	head, ok := q.Peek()
	if !ok || head.PTS != 2 {
		t.Errorf("peek: got %v %v, want pts 2", head, ok)
	}
}

func TestPictureQueueCancelWakesPush(t *testing.T) {
	t.Parallel()
	quit := NewQuit()
	q := NewPictureQueue(1, quit)
	_ = q.Push(&media.Picture{})

	done := make(chan error, 1)
	go func() {
		done <- q.Push(&media.Picture{})
	}()

	time.Sleep(10 * time.Millisecond)
	quit.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("got %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Push did not wake on cancel")
	}
}

func TestPictureQueueEmpty(t *testing.T) {
	t.Parallel()
	q := NewPictureQueue(0, NewQuit())

	if q.Cap() != 1 {
		t.Errorf("cap: got %d, want 1", q.Cap())
	}
	if _, ok := q.Peek(); ok {
		t.Error("peek on empty queue should fail")
	}
	if _, ok := q.Pop(); ok {
		t.Error("pop on empty queue should fail")
	}
}

func TestQuitFirstCauseWins(t *testing.T) {
	t.Parallel()
	quit := NewQuit()
	first := errors.New("first")

	quit.CancelWithCause(first)
	quit.CancelWithCause(errors.New("second"))
	quit.Cancel()

	if !quit.Cancelled() {
		t.Error("should be cancelled")
	}
	if quit.Err() != first {
		t.Errorf("cause: got %v, want %v", quit.Err(), first)
	}
	select {
	case <-quit.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestQuitContext(t *testing.T) {
	t.Parallel()
	quit := NewQuit()
	ctx, cancel := quit.Context(context.Background())
	defer cancel()

	quit.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("derived context not cancelled by quit")
	}
}
