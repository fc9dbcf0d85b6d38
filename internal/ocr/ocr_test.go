package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/aprslabs/sahayak/internal/apperr"
)

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ocrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("body not JSON: %v", err)
		}
		if req.Language != "te" {
			t.Errorf("language = %q, want te", req.Language)
		}
		img, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || string(img) != "fake-png" {
			t.Errorf("image content = %q, %v", req.Image, err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"predictions": []map[string]string{
				{"text": "first line"},
				{"text": ""},
				{"text": "second line"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Recognize(context.Background(), []byte("fake-png"), "te")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got != "first line\nsecond line" {
		t.Errorf("text = %q", got)
	}
}

func TestRecognize_DefaultsLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ocrRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Language != "en" {
			t.Errorf("language = %q, want en default", req.Language)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"predictions": []map[string]string{}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Recognize(context.Background(), []byte("img"), ""); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
}

func TestRecognize_EmptyImage(t *testing.T) {
	c := New("http://example.invalid")
	_, err := c.Recognize(context.Background(), nil, "en")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRecognize_NoEndpoint(t *testing.T) {
	c := New("")
	_, err := c.Recognize(context.Background(), []byte("img"), "en")
	if !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("err = %v, want ErrConfigurationMissing", err)
	}
}

func TestRecognize_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported script"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Recognize(context.Background(), []byte("img"), "en")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"This AGREEMENT is made between the parties", []string{"contract"}},
		{"Exhibit A: witness testimony transcript", []string{"evidence"}},
		{"Invoice total amount with GST", []string{"invoice"}},
		{"agreement referencing exhibit B", []string{"contract", "evidence"}},
		{"an unrelated note", []string{"general"}},
	}
	for _, c := range cases {
		if got := Classify(c.text); !reflect.DeepEqual(got, c.want) {
			t.Errorf("Classify(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
