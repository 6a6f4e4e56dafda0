package bridge

import "testing"

func TestCommandQueueCoalescesGotoCylinder(t *testing.T) {
	q := newCommandQueue()
	q.push(command{kind: cmdGotoCylinder, cylinder: 1})
	q.push(command{kind: cmdGotoCylinder, cylinder: 2})
	q.push(command{kind: cmdGotoCylinder, cylinder: 3})

	items := q.drain()
	if len(items) != 1 {
		t.Fatalf("expected consecutive GotoCylinder pushes to coalesce into 1 item, got %d", len(items))
	}
	if items[0].cylinder != 3 {
		t.Errorf("coalesced cylinder = %d, want 3 (the last pushed)", items[0].cylinder)
	}
}

func TestCommandQueueCoalescesAcrossPairedSelectSide(t *testing.T) {
	// GotoCylinder always enqueues a GotoCylinder/SelectSide pair back to
	// back; the SelectSide sitting between two GotoCylinder pushes must
	// not break coalescing, since it belongs to the first Goto's pair.
	q := newCommandQueue()
	q.push(command{kind: cmdGotoCylinder, cylinder: 1})
	q.push(command{kind: cmdSelectSide, side: true})
	q.push(command{kind: cmdGotoCylinder, cylinder: 2})
	q.push(command{kind: cmdSelectSide, side: false})

	items := q.drain()
	if len(items) != 2 {
		t.Fatalf("expected the paired Goto/SelectSide pushes to coalesce into 1 pair, got %d items: %v", len(items), items)
	}
	if items[0].cylinder != 2 {
		t.Errorf("coalesced cylinder = %d, want 2 (the last pushed)", items[0].cylinder)
	}
	if items[1].side != false {
		t.Errorf("coalesced side = %v, want false (the last pushed)", items[1].side)
	}
}

func TestCommandQueueDoesNotCoalesceAcrossOtherCommands(t *testing.T) {
	q := newCommandQueue()
	q.push(command{kind: cmdGotoCylinder, cylinder: 1})
	q.push(command{kind: cmdMotorOn})
	q.push(command{kind: cmdGotoCylinder, cylinder: 2})

	items := q.drain()
	if len(items) != 3 {
		t.Fatalf("expected 3 items when a non-paired command separates two Gotos, got %d", len(items))
	}
	if items[0].cylinder != 1 || items[2].cylinder != 2 {
		t.Errorf("unexpected cylinder values in %v", items)
	}
}

func TestCommandQueueDrainEmptiesAndSignalsEmpty(t *testing.T) {
	q := newCommandQueue()
	if !q.empty() {
		t.Fatalf("fresh queue should be empty")
	}
	q.push(command{kind: cmdMotorOn})
	if q.empty() {
		t.Errorf("queue with a pending command should not be empty")
	}
	items := q.drain()
	if len(items) != 1 {
		t.Fatalf("drain should return the pushed item")
	}
	if !q.empty() {
		t.Errorf("queue should be empty after drain")
	}
	if got := q.drain(); got != nil {
		t.Errorf("draining an empty queue should return nil, got %v", got)
	}
}

func TestCommandQueueSignalsWake(t *testing.T) {
	q := newCommandQueue()
	q.push(command{kind: cmdMotorOn})
	select {
	case <-q.wake:
	default:
		t.Fatalf("push should signal the wake channel")
	}
}
