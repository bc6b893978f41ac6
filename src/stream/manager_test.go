package stream

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/store"
)

func TestManager(t *testing.T) {
	dir, err := os.MkdirTemp("", "manager")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s, err := store.NewBadgerStore(10, dir)
	if err != nil {
		t.Fatal(err)
	}

	key := generateKey(t)
	logger := common.NewTestEntry(t, common.TestLogLevel)
	m := NewManager(s, time.Minute, logger)

	root := HypotheticalRoot("test/profile", key.PublicKey())
	g, err := m.Create(root)
	if err != nil {
		t.Fatal(err)
	}

	if again, _ := m.Create(root); again != g {
		t.Fatalf("creating a known stream returns its graph")
	}

	a, err := m.Append(g.RootCID(), "test/message", textData("a"), key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Append(g.RootCID(), "test/message", textData("b"), key)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Append("oh1.unknown", "test/message", textData("c"), key); !errors.Is(err, ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream, got %v", err)
	}

	// a remote object, received out of order
	replica, _ := NewGraph(root, time.Minute, logger)
	replica.Insert(a)
	replica.Insert(b)
	c, _ := replica.Append("test/message", textData("c"), key)
	d, _ := replica.Append("test/message", textData("d"), key)

	if _, err := m.Insert(d); !IsUnresolvedParent(err) {
		t.Fatalf("expected UnresolvedParentError, got %v", err)
	}
	if m.PendingCount() != 1 {
		t.Fatalf("expected 1 pending object, got %d", m.PendingCount())
	}
	applied, err := m.Insert(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected c and d to be applied, got %d", len(applied))
	}

	got, err := m.GetObject(d.CID())
	if err != nil {
		t.Fatalf("promoted objects should be persisted: %v", err)
	}
	if got.CID() != d.CID() {
		t.Fatalf("unexpected object")
	}

	expected := cids(g.Linearize())

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = store.NewBadgerStore(10, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	m = NewManager(s, time.Minute, logger)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual([]object.CID{g.RootCID()}, m.Streams()) {
		t.Fatalf("expected the stream to be loaded, got %v", m.Streams())
	}
	loaded, ok := m.Get(g.RootCID())
	if !ok {
		t.Fatalf("stream not loaded")
	}
	if got := cids(loaded.Linearize()); !reflect.DeepEqual(expected, got) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestManagerInsertRoot(t *testing.T) {
	m := NewManager(store.NewInmemStore(), time.Minute, common.NewTestEntry(t, common.TestLogLevel))
	key := generateKey(t)

	root := HypotheticalRoot("test/profile", key.PublicKey())
	if _, err := m.Insert(root); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get(root.CID()); !ok {
		t.Fatalf("inserting a root creates its stream")
	}

	orphan := object.New("test/message", textData("x"), object.Metadata{
		Stream:  "oh1.unknown",
		Parents: object.Parents{object.DefaultParents: {"oh1.unknown"}},
	})
	if _, err := m.Insert(orphan); !errors.Is(err, ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream, got %v", err)
	}
}
