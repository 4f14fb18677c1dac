package publisher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu       sync.Mutex
	payloads []string
	times    []time.Time
	failAt   int
}

func (r *recordingSender) Publish(_ string, payload []byte, _ byte, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.payloads)+1 == r.failAt {
		return errors.New("broker said no")
	}
	r.payloads = append(r.payloads, string(payload))
	r.times = append(r.times, time.Now())
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultPayloadFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadPayload(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr error
	}{
		{name: "compacts object", content: "{\n  \"device\": \"sensor-1\",\n  \"value\": 21.5\n}\n", want: `{"device":"sensor-1","value":21.5}`},
		{name: "keeps unicode", content: `{"msg": "xin chào"}`, want: `{"msg":"xin chào"}`},
		{name: "array", content: `[1, 2, 3]`, want: `[1,2,3]`},
		{name: "invalid", content: `{"a":`, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadPayload(writeFile(t, tt.content))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("LoadPayload() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadPayload() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("LoadPayload() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadPayload_Missing(t *testing.T) {
	_, err := LoadPayload(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadPayload() error = %v, want os.ErrNotExist", err)
	}
}

func TestPublishJSON(t *testing.T) {
	s := &recordingSender{}
	v := map[string]any{"html": "<b>&</b>", "n": 1}

	if err := PublishJSON(s, "a/b", v, 0, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	want := `{"html":"<b>&</b>","n":1}`
	if len(s.payloads) != 1 || s.payloads[0] != want {
		t.Errorf("payloads = %v, want [%s]", s.payloads, want)
	}

	if err := PublishJSON(s, "a/b", make(chan int), 0, false); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrInvalidJSON", err)
	}
}

func TestPublish_Repeat(t *testing.T) {
	s := &recordingSender{}

	n, err := Publish(context.Background(), s, "a", []byte("x"), 1, false, Options{Repeat: 5})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n != 5 || len(s.payloads) != 5 {
		t.Errorf("sent = %d (recorded %d), want 5", n, len(s.payloads))
	}
}

func TestPublish_DefaultsToOnce(t *testing.T) {
	s := &recordingSender{}
	n, err := Publish(context.Background(), s, "a", []byte("x"), 0, false, Options{})
	if err != nil || n != 1 {
		t.Errorf("Publish() = %d, %v; want 1, nil", n, err)
	}
}

func TestPublish_Rate(t *testing.T) {
	s := &recordingSender{}

	start := time.Now()
	n, err := Publish(context.Background(), s, "a", []byte("x"), 0, false, Options{Repeat: 3, Rate: 20})
	if err != nil || n != 3 {
		t.Fatalf("Publish() = %d, %v; want 3, nil", n, err)
	}

	// Burst of one: the second and third sends each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 80ms at 20 msg/s", elapsed)
	}
}

func TestPublish_StopsOnError(t *testing.T) {
	s := &recordingSender{failAt: 3}

	n, err := Publish(context.Background(), s, "a", []byte("x"), 0, false, Options{Repeat: 5})
	if err == nil {
		t.Fatal("Publish() error = nil, want failure")
	}
	if n != 2 {
		t.Errorf("sent = %d, want 2", n)
	}
}

func TestPublish_Cancelled(t *testing.T) {
	s := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Publish(ctx, s, "a", []byte("x"), 0, false, Options{Repeat: 3, Rate: 1})
	if err == nil {
		t.Fatal("Publish() error = nil, want context error")
	}
	if n != 0 {
		t.Errorf("sent = %d, want 0", n)
	}
}

func TestPublish_InvalidOptions(t *testing.T) {
	s := &recordingSender{}
	if _, err := Publish(context.Background(), s, "a", nil, 0, false, Options{Repeat: -1}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("Publish() error = %v, want ErrInvalidOptions", err)
	}
}

func TestPublishFile(t *testing.T) {
	s := &recordingSender{}
	path := writeFile(t, `{ "hello": "world" }`)

	n, err := PublishFile(context.Background(), s, path, "test/topic", 1, false, Options{Repeat: 2})
	if err != nil || n != 2 {
		t.Fatalf("PublishFile() = %d, %v; want 2, nil", n, err)
	}
	if s.payloads[0] != `{"hello":"world"}` {
		t.Errorf("payload = %s", s.payloads[0])
	}
}
