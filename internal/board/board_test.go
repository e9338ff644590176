package board

import "testing"

func TestApplyRejectsOutOfRange(t *testing.T) {
	var b Board
	for _, idx := range []int{-1, 9, 42} {
		if _, err := Apply(b, idx, X); err != ErrIllegalMove {
			t.Fatalf("index %d: expected ErrIllegalMove, got %v", idx, err)
		}
	}
}

func TestApplyRejectsOccupiedCell(t *testing.T) {
	var b Board
	b2, err := Apply(b, 4, X)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := Apply(b2, 4, O); err != ErrIllegalMove {
		t.Fatalf("expected ErrIllegalMove on occupied cell, got %v", err)
	}
	// original board untouched
	if b[4] != Empty {
		t.Fatalf("input board mutated")
	}
}

func TestApplyRejectsEmptyMark(t *testing.T) {
	var b Board
	if _, err := Apply(b, 0, Empty); err != ErrIllegalMove {
		t.Fatalf("expected ErrIllegalMove for empty mark, got %v", err)
	}
}

func TestEvaluateAllLines(t *testing.T) {
	wins := [8][3]int{
		{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
		{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
		{0, 4, 8}, {2, 4, 6},
	}
	for _, mark := range []Mark{X, O} {
		for _, ln := range wins {
			var b Board
			for _, i := range ln {
				b[i] = mark
			}
			out, w := Evaluate(b)
			if out != Win || w != mark {
				t.Fatalf("line %v mark %s: got outcome=%v winner=%q", ln, mark, out, w)
			}
			got, ok := WinningLine(b)
			if !ok || got != ln {
				t.Fatalf("WinningLine(%v) = %v, %v", ln, got, ok)
			}
		}
	}
}

func TestEvaluateOngoing(t *testing.T) {
	var b Board
	if out, _ := Evaluate(b); out != Ongoing {
		t.Fatalf("empty board should be Ongoing, got %v", out)
	}
	b[0], b[4] = X, O
	if out, _ := Evaluate(b); out != Ongoing {
		t.Fatalf("partial board should be Ongoing, got %v", out)
	}
}

func TestEvaluateDrawOnlyWhenFull(t *testing.T) {
	// X O X / X O O / O X X: full, no triple
	full := Board{X, O, X, X, O, O, O, X, X}
	if out, _ := Evaluate(full); out != Draw {
		t.Fatalf("expected Draw, got %v", out)
	}
	// same position with one cell open is still ongoing
	open := full
	open[8] = Empty
	if out, _ := Evaluate(open); out != Ongoing {
		t.Fatalf("expected Ongoing with open cell, got %v", out)
	}
}

func TestDiagonalWinSequence(t *testing.T) {
	// X plays 0,4,8 while O plays 1,2 in between
	var b Board
	var err error
	moves := []struct {
		idx  int
		mark Mark
	}{
		{0, X}, {1, O}, {4, X}, {2, O}, {8, X},
	}
	for _, mv := range moves {
		b, err = Apply(b, mv.idx, mv.mark)
		if err != nil {
			t.Fatalf("Apply(%d,%s): %v", mv.idx, mv.mark, err)
		}
	}
	out, w := Evaluate(b)
	if out != Win || w != X {
		t.Fatalf("expected Win(X) on main diagonal, got outcome=%v winner=%q", out, w)
	}
	ln, ok := WinningLine(b)
	if !ok || ln != [3]int{0, 4, 8} {
		t.Fatalf("expected winning line {0,4,8}, got %v ok=%v", ln, ok)
	}
}
