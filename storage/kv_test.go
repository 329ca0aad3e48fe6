package storage

import "testing"

type sampleRecord struct {
	Name  string
	Value uint64
}

func TestKVStoreRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemDB())
	in := sampleRecord{Name: "vault", Value: 42}
	if err := store.KVPut([]byte("sample/1"), in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out sampleRecord
	ok, err := store.KVGet([]byte("sample/1"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestKVStoreMissingKey(t *testing.T) {
	store := NewKVStore(NewMemDB())
	var out sampleRecord
	ok, err := store.KVGet([]byte("missing"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing key")
	}
}

func TestKVStoreAppendList(t *testing.T) {
	store := NewKVStore(NewMemDB())
	if err := store.KVAppend([]byte("list"), []byte("a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.KVAppend([]byte("list"), []byte("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	var entries [][]byte
	if err := store.KVGetList([]byte("list"), &entries); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(entries) != 2 || string(entries[0]) != "a" || string(entries[1]) != "b" {
		t.Fatalf("unexpected list contents: %q", entries)
	}
}
