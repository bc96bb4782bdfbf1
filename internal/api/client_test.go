package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/fakeapi"
	"vidgen/internal/media"
	"vidgen/internal/model"
	"vidgen/internal/version"
)

func newFakeClient(t *testing.T) (*Client, *fakeapi.Server) {
	t.Helper()
	fake := fakeapi.New()
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Timeout: time.Second, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, fake
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	for _, base := range []string{"", "localhost:8000/api", "/api"} {
		if _, err := New(Options{BaseURL: base}); err == nil {
			t.Fatalf("expected error for base %q", base)
		}
	}
}

func TestFetchStatusDecodesSnapshot(t *testing.T) {
	c, fake := newFakeClient(t)
	fake.Script("vid_42", fakeapi.Step{
		Status:   "processing",
		Progress: fakeapi.Progress(40),
		Message:  "Rendering",
		Extra:    map[string]any{"eta_seconds": 12},
	})

	snap, err := c.FetchStatus(context.Background(), "vid_42")
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if snap.Status != "processing" || snap.Progress != 40 || snap.Message != "Rendering" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if got := string(snap.Extra["eta_seconds"]); got != "12" {
		t.Fatalf("passthrough field got %q want %q", got, "12")
	}
}

func TestFetchStatusMissingProgressIsZero(t *testing.T) {
	c, fake := newFakeClient(t)
	fake.Script("vid_1", fakeapi.Step{Status: "pending"})

	snap, err := c.FetchStatus(context.Background(), "vid_1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Progress != 0 {
		t.Fatalf("progress got %d want 0", snap.Progress)
	}
}

func TestFetchStatusErrorKinds(t *testing.T) {
	cases := []struct {
		name      string
		step      *fakeapi.Step
		notFound  bool
		transport bool
	}{
		{name: "unknown id", step: nil, notFound: true},
		{name: "scripted 404", step: &fakeapi.Step{NotFound: true}, notFound: true},
		{name: "server error", step: ptr(fakeapi.ServerError()), transport: true},
		{name: "html body", step: ptr(fakeapi.Garbage()), transport: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, fake := newFakeClient(t)
			if tc.step != nil {
				fake.Script("vid_9", *tc.step)
			}
			_, err := c.FetchStatus(context.Background(), "vid_9")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsNotFound(err); got != tc.notFound {
				t.Fatalf("IsNotFound got %v want %v (err=%v)", got, tc.notFound, err)
			}
			if got := IsTransport(err); got != tc.transport {
				t.Fatalf("IsTransport got %v want %v (err=%v)", got, tc.transport, err)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestFetchStatusUnreachableServerIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base, Timeout: time.Second, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.FetchStatus(context.Background(), "vid_1")
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestStartGenerationSendsNormalizedOptions(t *testing.T) {
	c, fake := newFakeClient(t)
	fake.SetNextID(func() string { return "vid_42" })

	id, err := c.StartGeneration(context.Background(), " https://shop.example.com/p/1 ", model.GenerateOptions{})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}
	if id != "vid_42" {
		t.Fatalf("id got %q want %q", id, "vid_42")
	}
	calls := fake.GenerateCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one generate call, got %d", len(calls))
	}
	got := calls[0]
	want := fakeapi.GenerateCall{
		URL:         "https://shop.example.com/p/1",
		AspectRatio: model.DefaultAspectRatio,
		Duration:    model.DefaultDurationSeconds,
		Template:    model.DefaultTemplate,
	}
	if got != want {
		t.Fatalf("request got %+v want %+v", got, want)
	}
}

func TestStartGenerationValidatesBeforeSending(t *testing.T) {
	c, fake := newFakeClient(t)
	cases := []struct {
		url  string
		opts model.GenerateOptions
	}{
		{"", model.GenerateOptions{}},
		{"not a url", model.GenerateOptions{}},
		{"https://shop.example.com", model.GenerateOptions{DurationSeconds: 5}},
		{"https://shop.example.com", model.GenerateOptions{AspectRatio: "4:3"}},
	}
	for _, tc := range cases {
		_, err := c.StartGeneration(context.Background(), tc.url, tc.opts)
		if err == nil {
			t.Fatalf("expected validation error for %q %+v", tc.url, tc.opts)
		}
		if IsTransport(err) {
			t.Fatalf("validation failure must not be a transport error: %v", err)
		}
	}
	if n := len(fake.GenerateCalls()); n != 0 {
		t.Fatalf("invalid requests reached the server: %d", n)
	}
}

func TestFetchTemplates(t *testing.T) {
	c, _ := newFakeClient(t)
	templates, err := c.FetchTemplates(context.Background())
	if err != nil {
		t.Fatalf("fetch templates: %v", err)
	}
	if len(templates) != 4 {
		t.Fatalf("templates got %d want 4", len(templates))
	}
	if templates[3].Name != "High Visibility" || templates[3].Theme != "high_visibility" {
		t.Fatalf("unexpected template: %+v", templates[3])
	}
}

func TestFetchMediaStreamsBody(t *testing.T) {
	c, fake := newFakeClient(t)
	fake.SetMedia("vid_42", []byte("mp4"))

	body, err := c.FetchMedia(context.Background(), "vid_42")
	if err != nil {
		t.Fatalf("fetch media: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mp4" {
		t.Fatalf("body got %q want %q", data, "mp4")
	}
	if got := fake.DownloadCalls("vid_42"); got != 1 {
		t.Fatalf("download calls got %d want 1", got)
	}
}

func TestFetchMediaNotReadyIsTransport(t *testing.T) {
	c, fake := newFakeClient(t)
	fake.Script("vid_2", fakeapi.Processing(10))

	_, err := c.FetchMedia(context.Background(), "vid_2")
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Video not ready for download") {
		t.Fatalf("server detail should be kept, got %v", err)
	}
}

func TestMediaURLMatchesResolver(t *testing.T) {
	c, _ := newFakeClient(t)
	for _, id := range []model.JobID{"vid_42", "a b", "x/y"} {
		if got, want := c.MediaURL(id), media.ResolveMediaURL(c.BaseURL(), id); got != want {
			t.Fatalf("MediaURL(%q) got %q want %q", id, got, want)
		}
	}
}

func TestRequestsCarryRequestIDAndUserAgent(t *testing.T) {
	var agents []string
	fake := fakeapi.New()
	fake.Script("vid_1", fakeapi.Pending(0))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		fake.Handler().ServeHTTP(w, r)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := c.FetchStatus(context.Background(), "vid_1"); err != nil {
			t.Fatal(err)
		}
	}

	ids := fake.RequestIDs()
	if len(ids) != 2 || ids[0] == "" || ids[0] == ids[1] {
		t.Fatalf("expected two distinct request ids, got %v", ids)
	}
	for _, ua := range agents {
		if ua != version.UserAgent() {
			t.Fatalf("user agent got %q want %q", ua, version.UserAgent())
		}
	}
}
