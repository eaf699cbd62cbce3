package queue

import (
	"context"
	"testing"
	"time"

	aqueue "dirpx.dev/pulselog/apis/queue"
	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/record"
)

func itemAt(lvl level.Level, msg string, protected bool) aqueue.Item {
	return aqueue.Item{
		Record:    record.Record{Level: lvl, Message: msg, Time: time.Unix(0, 0)},
		Protected: protected,
	}
}

func TestRing_TryEnqueue_AdmitsUntilCapacity(t *testing.T) {
	r := New(2)
	if r.TryEnqueue(itemAt(level.Info, "a", false)) != aqueue.Admitted {
		t.Fatalf("expected first enqueue admitted")
	}
	if r.TryEnqueue(itemAt(level.Info, "b", false)) != aqueue.Admitted {
		t.Fatalf("expected second enqueue admitted")
	}
	if r.TryEnqueue(itemAt(level.Info, "c", false)) != aqueue.Full {
		t.Fatalf("expected third enqueue to report Full")
	}
	if r.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", r.Depth())
	}
	if r.HighWatermark() != 2 {
		t.Fatalf("high watermark = %d, want 2", r.HighWatermark())
	}
}

// Scenario 3 from spec section 8: priority eviction.
func TestRing_PriorityEviction(t *testing.T) {
	r := New(4)
	for i := 0; i < 4; i++ {
		if r.TryEnqueue(itemAt(level.Info, "info", false)) != aqueue.Admitted {
			t.Fatalf("expected INFO %d to be admitted while queue has room", i)
		}
	}

	errItem := itemAt(level.Error, "boom", true)
	acct := &DropAccounting{}
	reason := AdmitWithPriority(r, errItem, acct)
	if reason != AdmitAfterEviction {
		t.Fatalf("reason = %v, want AdmitAfterEviction", reason)
	}
	if r.Depth() != 4 {
		t.Fatalf("depth after eviction+admit = %d, want 4", r.Depth())
	}

	batch := r.DequeueBatch(context.Background(), 10)
	if len(batch) != 4 {
		t.Fatalf("batch len = %d, want 4", len(batch))
	}
	for i := 0; i < 3; i++ {
		if batch[i].Record.Level != level.Info {
			t.Fatalf("batch[%d] level = %v, want Info", i, batch[i].Record.Level)
		}
	}
	if batch[3].Record.Level != level.Error || batch[3].Record.Message != "boom" {
		t.Fatalf("batch[3] = %+v, want the evicted-admitted ERROR", batch[3])
	}
}

func TestRing_ProtectedOverProtected_Drops(t *testing.T) {
	r := New(2)
	r.TryEnqueue(itemAt(level.Error, "e1", true))
	r.TryEnqueue(itemAt(level.Fatal, "e2", true))

	acct := &DropAccounting{}
	reason := AdmitWithPriority(r, itemAt(level.Error, "e3", true), acct)
	if reason != AdmitDroppedProtectedOverProtected {
		t.Fatalf("reason = %v, want AdmitDroppedProtectedOverProtected", reason)
	}
	if acct.DroppedProtectedOverFull.Load() != 1 {
		t.Fatalf("DroppedProtectedOverFull = %d, want 1", acct.DroppedProtectedOverFull.Load())
	}
}

func TestRing_DequeueBatch_BlocksUntilDeadline(t *testing.T) {
	r := New(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	batch := r.DequeueBatch(ctx, 10)
	elapsed := time.Since(start)

	if len(batch) != 0 {
		t.Fatalf("expected empty batch on empty queue, got %d items", len(batch))
	}
	if elapsed < 15*time.Millisecond {
		t.Fatalf("expected DequeueBatch to wait for the deadline, elapsed=%v", elapsed)
	}
}

func TestRing_DequeueBatch_ReturnsAsSoonAsItemsArrive(t *testing.T) {
	r := New(4)
	go func() {
		time.Sleep(5 * time.Millisecond)
		r.TryEnqueue(itemAt(level.Info, "x", false))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch := r.DequeueBatch(ctx, 10)
	if len(batch) != 1 {
		t.Fatalf("expected 1 item, got %d", len(batch))
	}
}

func TestRing_Close_WakesBlockedConsumer(t *testing.T) {
	r := New(4)
	done := make(chan []aqueue.Item, 1)
	go func() {
		done <- r.DequeueBatch(context.Background(), 10)
	}()
	time.Sleep(5 * time.Millisecond)
	r.Close()

	select {
	case batch := <-done:
		if len(batch) != 0 {
			t.Fatalf("expected empty batch after close with no items, got %d", len(batch))
		}
	case <-time.After(time.Second):
		t.Fatalf("DequeueBatch did not return after Close")
	}
}
