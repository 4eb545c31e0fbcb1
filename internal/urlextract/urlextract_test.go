package urlextract

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func TestExtractPlainDedup(t *testing.T) {
	got := Extract("see https://mega.nz/file/aaa and https://mega.nz/file/aaa")
	want := []string{"https://mega.nz/file/aaa"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeLegacyFolder(t *testing.T) {
	got := Extract("https://mega.nz/#F!3RYjXIAK!6cjk7zs42McdRTT4C-J-sg")
	want := []string{"https://mega.nz/folder/3RYjXIAK#6cjk7zs42McdRTT4C-J-sg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeLegacyFile(t *testing.T) {
	got := Normalize("https://mega.nz/#!abc!def")
	want := "https://mega.nz/file/abc#def"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTripleBase64(t *testing.T) {
	inner := "https://mega.nz/file/verydeep"
	wrapped := base64.StdEncoding.EncodeToString([]byte(
		base64.StdEncoding.EncodeToString([]byte(
			base64.StdEncoding.EncodeToString([]byte(inner))))))

	got := Extract(wrapped)
	want := []string{inner}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBase64DepthBound(t *testing.T) {
	inner := "https://mega.nz/file/toodeep"
	wrapped := inner
	for i := 0; i < 4; i++ {
		wrapped = base64.StdEncoding.EncodeToString([]byte(wrapped))
	}

	got := Extract(wrapped)
	if len(got) != 0 {
		t.Fatalf("expected no matches beyond depth bound, got %v", got)
	}
}

func TestExtractIdempotence(t *testing.T) {
	inputs := []string{
		"see https://mega.nz/file/aaa and https://mega.nz/file/aaa",
		"https://mega.nz/#F!3RYjXIAK!6cjk7zs42McdRTT4C-J-sg plus archive.dlc",
		base64.StdEncoding.EncodeToString([]byte("https://mega.nz/file/x https://mega.nz/file/y")),
	}

	for _, in := range inputs {
		first := Extract(in)
		second := Extract(joinSpace(first))
		if !sameSet(first, second) {
			t.Fatalf("not idempotent for %q: first=%v second=%v", in, first, second)
		}
	}
}

func TestExtractContainerPath(t *testing.T) {
	got := Extract("grab archive.DLC now")
	want := []string{"archive.DLC"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractNeverFails(t *testing.T) {
	inputs := []string{"", "\x00\x01garbage", "not base64 at all !!!", "https://mega.nz/"}
	for _, in := range inputs {
		_ = Extract(in)
	}
}

func joinSpace(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}
