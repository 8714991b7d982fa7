package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssetsRoundTrip(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "original.png", MIME: "image/png", Data: []byte("png-bytes")},
		{Filename: "audio.wav", MIME: "audio/wav", Data: []byte("wav-bytes")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets returned error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if zr.File[1].Name != "audio.wav" || string(body) != "wav-bytes" {
		t.Fatalf("unexpected entry %s: %q", zr.File[1].Name, body)
	}
}

func TestArchiveAssetsRejectsDuplicates(t *testing.T) {
	_, err := ArchiveAssets([]Asset{{Filename: "a.png"}, {Filename: "a.png"}})
	if err == nil {
		t.Fatalf("expected duplicate filename error")
	}
	if _, err := ArchiveAssets([]Asset{{Filename: ""}}); err == nil {
		t.Fatalf("expected missing filename error")
	}
}
