package game

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recvSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("snapshot channel closed early")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestSubscribeDeliversInitialThenLive(t *testing.T) {
	m := newTestManager(t, 0)
	ctx := context.Background()

	g, err := m.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub, err := m.Subscribe(ctx, g.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	first := recvSnapshot(t, sub.Snapshots())
	if first.ID != g.ID || first.Status != StatusWaiting {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}

	if _, err := m.Join(ctx, g.ID, "u2"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	joined := recvSnapshot(t, sub.Snapshots())
	if joined.Status != StatusInProgress || joined.Player2ID != "u2" {
		t.Fatalf("unexpected join snapshot: %+v", joined)
	}

	if _, err := m.SubmitMove(ctx, g.ID, "u1", 0); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	moved := recvSnapshot(t, sub.Snapshots())
	if moved.Board[0] != "X" || moved.CurrentTurn != "u2" {
		t.Fatalf("unexpected move snapshot: %+v", moved)
	}
}

func TestSubscribeUnknownGame(t *testing.T) {
	m := newTestManager(t, 0)
	if _, err := m.Subscribe(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptionCloseEndsStream(t *testing.T) {
	m := newTestManager(t, 0)
	ctx := context.Background()

	g, err := m.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sub, err := m.Subscribe(ctx, g.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	recvSnapshot(t, sub.Snapshots())

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-sub.Snapshots():
		if ok {
			// a buffered snapshot may still drain; the channel must close after
			for range sub.Snapshots() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel did not close after Close")
	}
}

func TestWinningLineInSnapshot(t *testing.T) {
	m := newTestManager(t, 0)
	ctx := context.Background()
	g := startGame(t, m)

	sub, err := m.Subscribe(ctx, g.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	recvSnapshot(t, sub.Snapshots())

	moves := []struct {
		actor string
		index int
	}{
		{"u1", 0}, {"u2", 1}, {"u1", 4}, {"u2", 2}, {"u1", 8},
	}
	for _, mv := range moves {
		if _, err := m.SubmitMove(ctx, g.ID, mv.actor, mv.index); err != nil {
			t.Fatalf("move %+v: %v", mv, err)
		}
	}

	var final Snapshot
	for i := 0; i < len(moves); i++ {
		final = recvSnapshot(t, sub.Snapshots())
	}
	if final.Status != StatusFinished || final.Winner != "X" {
		t.Fatalf("unexpected final snapshot: %+v", final)
	}
	if final.WinningLine == nil || *final.WinningLine != [3]int{0, 4, 8} {
		t.Fatalf("winning line = %v", final.WinningLine)
	}
}
