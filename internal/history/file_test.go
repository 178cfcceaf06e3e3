package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_RoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	in := Series{
		{Time: t0, Price: 100.5},
		{Time: t0.Add(time.Minute), Price: 101.25},
	}
	if err := fs.Save(context.Background(), "BTC", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := fs.Load(context.Background(), "btc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if !out[i].Time.Equal(in[i].Time) || out[i].Price != in[i].Price {
			t.Errorf("sample %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestFileStore_MissingIsEmpty(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	out, err := fs.Load(context.Background(), "eth")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("Load(missing) = %#v, want empty series", out)
	}
}

func TestFileStore_CorruptPayload(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "btc_history.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Load(context.Background(), "btc"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}

	m := NewManager(Config{}, fs, nopLogger())
	if err := m.Load(context.Background(), "btc"); err != nil {
		t.Errorf("Manager.Load(corrupt) = %v, want nil", err)
	}
}

func TestFileStore_NullPayloadIsEmpty(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	_ = os.WriteFile(filepath.Join(dir, "ada_history.json"), []byte("null"), 0o644)
	out, err := fs.Load(context.Background(), "ada")
	if err != nil || len(out) != 0 {
		t.Errorf("Load(null) = %v, %v", out, err)
	}
}
