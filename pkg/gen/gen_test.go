package gen_test

import (
	"testing"

	"bulkdl/pkg/gen"

	"github.com/google/uuid"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want string
	}{
		{name: "basic", a: "foo", b: "bar", want: "foo|bar"},
		{name: "emptyA", a: "", b: "value", want: "|value"},
		{name: "bothEmpty", a: "", b: "", want: "|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gen.Key(tt.a, tt.b); got != tt.want {
				t.Fatalf("Key(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestBatchID(t *testing.T) {
	a, b := gen.BatchID(), gen.BatchID()
	if a == b {
		t.Fatalf("BatchID() returned duplicate %q", a)
	}

	id, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("BatchID() not a uuid: %v", err)
	}

	if id.Version() != 7 {
		t.Errorf("BatchID() version = %d, want 7", id.Version())
	}
}

func TestUUIDv5Deterministic(t *testing.T) {
	if gen.UUIDv5("42", "a.mp4") != gen.UUIDv5("42", "a.mp4") {
		t.Fatal("UUIDv5() not deterministic")
	}

	if gen.UUIDv5("42", "a.mp4") == gen.UUIDv5("42", "b.mp4") {
		t.Fatal("UUIDv5() collided for different input")
	}
}
