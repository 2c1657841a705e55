package framebuf

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"fbmirror-go/internal/notify"
)

func TestChangedDetectsSingleByte(t *testing.T) {
	p := NewPair(4, 2)
	if p.Changed() {
		t.Fatal("fresh pair reports a change")
	}
	p.Staging()[7] = 0x5a
	if !p.Changed() {
		t.Fatal("single differing byte not detected")
	}
}

func TestPromoteCopiesFullBuffer(t *testing.T) {
	p := NewPair(4, 2)
	for i := range p.Staging() {
		p.Staging()[i] = byte(i * 3)
	}
	captured := time.Unix(42, 0)
	seq := p.Promote(captured)
	if seq != 1 {
		t.Fatalf("first promote returned seq %d", seq)
	}
	if p.Changed() {
		t.Fatal("staging still differs from stable after promote")
	}

	dst := make([]byte, p.Size())
	gotSeq, gotTime := p.Snapshot(dst)
	if gotSeq != 1 {
		t.Fatalf("snapshot seq = %d, want 1", gotSeq)
	}
	if !gotTime.Equal(captured) {
		t.Fatalf("snapshot time = %v, want %v", gotTime, captured)
	}
	if !bytes.Equal(dst, p.Staging()) {
		t.Fatal("snapshot does not match promoted frame")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	p := NewPair(2, 2)
	p.Staging()[0] = 1
	p.Promote(time.Unix(1, 0))

	dst := make([]byte, p.Size())
	p.Snapshot(dst)
	dst[0] = 99

	again := make([]byte, p.Size())
	p.Snapshot(again)
	if again[0] != 1 {
		t.Fatalf("mutating a snapshot leaked into stable: %d", again[0])
	}
}

func TestWaitFrameSeesPromote(t *testing.T) {
	p := NewPair(2, 2)
	p.Staging()[0] = 1
	p.Promote(time.Unix(1, 0))

	seq, err := p.WaitFrame(0)
	if err != nil {
		t.Fatalf("wait error: %v", err)
	}
	if seq != 1 {
		t.Fatalf("wait returned %d, want 1", seq)
	}
	if p.PublishCount() != 1 {
		t.Fatalf("publish count = %d, want 1", p.PublishCount())
	}
}

func TestCloseUnblocksConsumer(t *testing.T) {
	p := NewPair(2, 2)
	done := make(chan error, 1)
	go func() {
		_, err := p.WaitFrame(0)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	p.Close()
	select {
	case err := <-done:
		if !errors.Is(err, notify.ErrClosed) {
			t.Fatalf("wait returned %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer not unblocked by close")
	}
}
