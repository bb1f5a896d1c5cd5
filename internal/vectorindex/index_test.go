package vectorindex

import (
	"encoding/json"
	"errors"
	"testing"
)

func entry(resourceID int64, content string) Entry {
	return Entry{Content: content, Metadata: map[string]any{MetaResourceID: resourceID}}
}

func TestIndex_AddFixesDimension(t *testing.T) {
	ix := New()
	if err := ix.Add([]Entry{entry(1, "a")}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ix.Dim != 3 {
		t.Errorf("Dim = %d, want 3", ix.Dim)
	}
	err := ix.Add([]Entry{entry(1, "b")}, [][]float32{{1, 0}})
	if !errors.Is(err, ErrDimension) {
		t.Errorf("err = %v, want ErrDimension", err)
	}
	if ix.Len() != 1 {
		t.Errorf("failed Add changed the index: len = %d", ix.Len())
	}
}

func TestIndex_AddLengthMismatch(t *testing.T) {
	ix := New()
	if err := ix.Add([]Entry{entry(1, "a"), entry(1, "b")}, [][]float32{{1}}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestIndex_SearchOrdersByCosine(t *testing.T) {
	ix := New()
	_ = ix.Add(
		[]Entry{entry(1, "x axis"), entry(2, "y axis"), entry(3, "diagonal")},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	)
	hits, err := ix.Search([]float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Content != "x axis" || hits[1].Content != "diagonal" {
		t.Errorf("order = %q, %q", hits[0].Content, hits[1].Content)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("scores not descending")
	}
}

func TestIndex_SearchEmptyAndBadQuery(t *testing.T) {
	hits, err := New().Search([]float32{1}, 5)
	if err != nil || len(hits) != 0 {
		t.Errorf("empty index: hits=%v err=%v", hits, err)
	}

	ix := New()
	_ = ix.Add([]Entry{entry(1, "a")}, [][]float32{{1, 0}})
	if _, err := ix.Search([]float32{1, 0, 0}, 1); !errors.Is(err, ErrDimension) {
		t.Errorf("err = %v, want ErrDimension", err)
	}
}

func TestIndex_RemoveResource(t *testing.T) {
	ix := New()
	_ = ix.Add(
		[]Entry{entry(1, "a"), entry(2, "b"), entry(1, "c")},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	)
	clone := ix.Clone()
	if n := ix.RemoveResource(1); n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if ix.Len() != 1 || ix.Entries[0].Content != "b" || len(ix.Vectors) != 1 {
		t.Errorf("index after remove = %+v", ix.Entries)
	}
	if clone.Len() != 3 {
		t.Errorf("clone affected by remove: len = %d", clone.Len())
	}
}

func TestMetaInt(t *testing.T) {
	m := map[string]any{"a": 3, "b": int64(4), "c": float64(5), "d": json.Number("6"), "e": "7"}
	for key, want := range map[string]int64{"a": 3, "b": 4, "c": 5, "d": 6} {
		got, ok := MetaInt(m, key)
		if !ok || got != want {
			t.Errorf("MetaInt(%s) = %d, %v", key, got, ok)
		}
	}
	if _, ok := MetaInt(m, "e"); ok {
		t.Error("string should not convert")
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	ix := New()
	_ = ix.Add(
		[]Entry{entry(7, "alpha"), entry(8, "beta")},
		[][]float32{{0.5, -1.25, 3}, {0, 0, 1}},
	)
	vec, meta, sum, err := encode(ix)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, gotSum, err := decode(vec, meta)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotSum != sum {
		t.Errorf("sum = %s, want %s", gotSum, sum)
	}
	if got.Dim != 3 || got.Len() != 2 || got.Vectors[0][1] != -1.25 || got.Entries[1].Content != "beta" {
		t.Errorf("decoded = %+v", got)
	}
	if id, _ := MetaInt(got.Entries[0].Metadata, MetaResourceID); id != 7 {
		t.Errorf("resource_id = %d", id)
	}
}

func TestCodec_DetectsTampering(t *testing.T) {
	ix := New()
	_ = ix.Add([]Entry{entry(1, "a")}, [][]float32{{1, 2}})
	vec, meta, _, _ := encode(ix)
	vec[len(vec)-1] ^= 0xff
	if _, _, err := decode(vec, meta); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}
