package fsops

import "testing"

func TestMemCreateFilePreallocates(t *testing.T) {
	m := NewMem()
	f, err := m.CreateFile("a/b.part", 10)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer f.Close()

	size, ok, err := m.Size("a/b.part")
	if err != nil || !ok || size != 10 {
		t.Fatalf("got size=%d ok=%v err=%v, want 10,true,nil", size, ok, err)
	}
}

func TestMemWriteAtAndRename(t *testing.T) {
	m := NewMem()
	f, _ := m.CreateFile("x.part", 5)
	if _, err := f.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if err := m.Rename("x.part", "x"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	exists, _ := m.Exists("x.part")
	if exists {
		t.Fatal("x.part should no longer exist after rename")
	}
	size, ok, _ := m.Size("x")
	if !ok || size != 5 {
		t.Fatalf("got size=%d ok=%v, want 5,true", size, ok)
	}
}

func TestMemRemoveMissingIsNotError(t *testing.T) {
	m := NewMem()
	if err := m.Remove("nope"); err != nil {
		t.Fatalf("Remove of missing path should not error, got %v", err)
	}
}
