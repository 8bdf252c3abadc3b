package snowflake

import (
	"testing"
	"time"
)

func TestNewRejectsWorkerOutOfRange(t *testing.T) {
	if _, err := New(maxWorkerValue + 1); err == nil {
		t.Error("expected error for worker ID above maximum")
	}
	if _, err := New(-1); err == nil {
		t.Error("expected error for negative worker ID")
	}
}

func TestGenerateSnowflake(t *testing.T) {
	g, err := New(7)
	if err != nil {
		t.Fatal(err)
	}

	id, err := g.Generate()
	if err != nil {
		t.Fatal(err)
	}

	s := Extract(id)
	if s.WorkerID != 7 {
		t.Errorf("worker ID = %d, want 7", s.WorkerID)
	}
}

func TestGenerateIsStrictlyIncreasing(t *testing.T) {
	g, err := New(0)
	if err != nil {
		t.Fatal(err)
	}

	var last int64
	for range 1000 {
		id, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestSnowflakeIncrementOverflow(t *testing.T) {
	g, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	frozen := time.UnixMilli(1_700_000_000_000)
	g.now = func() time.Time { return frozen }

	for range maxIncrementValue + 2 {
		if _, err := g.Generate(); err != nil {
			return
		}
	}
	t.Error("Expected increment overflow, but there wasn't")
}

func TestNewIDIsDecimal(t *testing.T) {
	g, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	id, err := g.NewID()
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			t.Fatalf("id %q contains non digit %q", id, r)
		}
	}
}
