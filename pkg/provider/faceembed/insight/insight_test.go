package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Run("face found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/detect" {
				t.Errorf("path = %q, want /detect", r.URL.Path)
			}
			if err := r.ParseMultipartForm(16 << 20); err != nil {
				t.Fatalf("parse multipart: %v", err)
			}
			f, _, err := r.FormFile("image")
			if err != nil {
				t.Fatalf("form file: %v", err)
			}
			f.Close()
			json.NewEncoder(w).Encode(map[string]any{
				"face_found": true,
				"det_score":  0.93,
				"embedding":  []float32{0.1, 0.2, 0.3},
				"dim":        3,
			})
		}))
		defer srv.Close()

		c, err := New(srv.URL)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		det, err := c.Detect(context.Background(), []byte{0xff, 0xd8, 0xff})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if !det.FaceFound {
			t.Fatal("FaceFound = false, want true")
		}
		if det.Score < 0.92 || det.Score > 0.94 {
			t.Errorf("Score = %v, want 0.93", det.Score)
		}
		if len(det.Embedding) != 3 {
			t.Errorf("embedding length = %d, want 3", len(det.Embedding))
		}
	})

	t.Run("no face", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"face_found": false})
		}))
		defer srv.Close()

		c, _ := New(srv.URL)
		det, err := c.Detect(context.Background(), []byte{0xff})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if det.FaceFound {
			t.Error("FaceFound = true, want false")
		}
		if det.Embedding != nil {
			t.Error("Embedding should be nil when no face is found")
		}
	})

	t.Run("server error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, _ := New(srv.URL)
		if _, err := c.Detect(context.Background(), []byte{0xff}); err == nil {
			t.Fatal("expected error for 500 response")
		}
	})

	t.Run("dim mismatch rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"face_found": true,
				"det_score":  0.9,
				"embedding":  []float32{0.1},
				"dim":        512,
			})
		}))
		defer srv.Close()

		c, _ := New(srv.URL)
		if _, err := c.Detect(context.Background(), []byte{0xff}); err == nil {
			t.Fatal("expected error for dim mismatch")
		}
	})
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
