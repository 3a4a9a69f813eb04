// Package testutil holds helpers shared across test packages.
package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// NewRecorder returns a VCR recorder replaying from testdata/fixtures. Set
// VCR_MODE=record against a live workflow instance to refresh a cassette.
func NewRecorder(t *testing.T, cassetteName string) (*recorder.Recorder, func()) {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", cassetteName), mode, nil)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	// Match on method and URL only; request bodies carry timestamps.
	r.SetMatcher(func(req *http.Request, i cassette.Request) bool {
		return req.Method == i.Method && req.URL.String() == i.URL
	})

	// Keep instance secrets and provider keys out of recorded cassettes.
	r.AddSaveFilter(func(i *cassette.Interaction) error {
		for _, header := range []string{"X-N8N-Api-Key", "X-Api-Key", "Authorization"} {
			if i.Request.Headers.Get(header) != "" {
				i.Request.Headers.Set(header, "REDACTED")
			}
		}
		return nil
	})

	cleanup := func() {
		if err := r.Stop(); err != nil {
			t.Errorf("recorder.Stop() error = %v", err)
		}
	}
	return r, cleanup
}

// HTTPClient returns a client whose transport replays through the recorder.
func HTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{Transport: r}
}
