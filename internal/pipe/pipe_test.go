package pipe

import (
	"reflect"
	"sync"
	"testing"

	"github.com/RaedanWulfe/oddimorf/internal/schema"
)

func testDescriptor(t *testing.T) schema.Descriptor {
	t.Helper()
	d, err := schema.Parse("uint64,float")
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	return d
}

func TestEnqueueDequeueOrder(t *testing.T) {
	p := New(testDescriptor(t))

	for i := 0; i < 5; i++ {
		p.Enqueue(Record{uint64(i), float32(i)})
	}

	for i := 0; i < 5; i++ {
		r, ok := p.Dequeue()
		if !ok {
			t.Fatalf("expected record %d", i)
		}
		if r[0].(uint64) != uint64(i) {
			t.Errorf("record %d out of order: got %v", i, r[0])
		}
	}

	if _, ok := p.Dequeue(); ok {
		t.Error("expected empty pipe")
	}
}

func TestDequeueAllButOneLeavesTrailing(t *testing.T) {
	p := New(testDescriptor(t))
	for i := 0; i < 4; i++ {
		p.Enqueue(Record{uint64(i), float32(0)})
	}

	got := p.DequeueAllButOne()
	if len(got) != 3 {
		t.Fatalf("expected 3 records drained, got %d", len(got))
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 record remaining, got %d", p.Len())
	}

	remaining, ok := p.Dequeue()
	if !ok || remaining[0].(uint64) != 3 {
		t.Errorf("expected trailing record to be the last enqueued, got %v", remaining)
	}
}

func TestDequeueAllButOneSmallQueue(t *testing.T) {
	p := New(testDescriptor(t))
	if got := p.DequeueAllButOne(); got != nil {
		t.Errorf("expected nil on empty pipe, got %v", got)
	}

	p.Enqueue(Record{uint64(1), float32(1)})
	if got := p.DequeueAllButOne(); got != nil {
		t.Errorf("expected nil with a single record, got %v", got)
	}
	if p.Len() != 1 {
		t.Error("single record should remain untouched")
	}
}

func TestDequeueUpTo(t *testing.T) {
	p := New(testDescriptor(t))
	for i := 0; i < 10; i++ {
		p.Enqueue(Record{uint64(i), float32(0)})
	}

	got := p.DequeueUpTo(4)
	if len(got) != 4 {
		t.Fatalf("expected 4, got %d", len(got))
	}
	if p.Len() != 6 {
		t.Fatalf("expected 6 remaining, got %d", p.Len())
	}

	rest := p.DequeueUpTo(100)
	if len(rest) != 6 {
		t.Fatalf("expected 6, got %d", len(rest))
	}
}

func TestDrain(t *testing.T) {
	p := New(testDescriptor(t))
	for i := 0; i < 7; i++ {
		p.Enqueue(Record{uint64(i), float32(0)})
	}
	if n := p.Drain(); n != 7 {
		t.Errorf("Drain returned %d, want 7", n)
	}
	if p.Len() != 0 {
		t.Error("pipe should be empty after Drain")
	}
}

func TestConcurrentEnqueue(t *testing.T) {
	p := New(testDescriptor(t))
	var wg sync.WaitGroup
	const producers, perProducer = 8, 100

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				p.Enqueue(Record{uint64(j), float32(0)})
			}
		}()
	}
	wg.Wait()

	if p.Len() != producers*perProducer {
		t.Errorf("Len = %d, want %d", p.Len(), producers*perProducer)
	}
}

func TestSetOrdering(t *testing.T) {
	s := NewSet()
	d := testDescriptor(t)
	s.Add("b", New(d))
	s.Add("a", New(d))
	s.Add("b", New(d)) // replace, should not move position

	keys := s.Keys()
	want := []string{"b", "a"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("expected Get to report missing key")
	}
}
