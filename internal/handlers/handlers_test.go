package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/catalog"
	"github.com/lehigh-university-libraries/artscan/internal/consent"
	"github.com/lehigh-university-libraries/artscan/internal/guide"
	"github.com/lehigh-university-libraries/artscan/internal/i18n"
	"github.com/lehigh-university-libraries/artscan/internal/identify"
	"github.com/lehigh-university-libraries/artscan/internal/models"
	"github.com/lehigh-university-libraries/artscan/internal/narration"
	"github.com/lehigh-university-libraries/artscan/internal/storage"
)

type stubIdentifier struct {
	result identify.Result
}

func (s stubIdentifier) Identify(context.Context, models.Image) identify.Result {
	return s.result
}

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *recordingSink) Send(e analytics.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) names(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, e := range s.events {
		if e.SessionID == sessionID {
			names = append(names, e.Name)
		}
	}
	return names
}

type testEnv struct {
	handler *Handler
	router  http.Handler
	sink    *recordingSink
}

func newTestEnv(t *testing.T, result identify.Result, mutate ...func(*Options)) *testEnv {
	t.Helper()

	bundle, err := i18n.New(filepath.Join("..", "..", "locales"), []string{"en", "es"})
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "artscan.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sink := &recordingSink{}
	opts := Options{
		Catalog:     catalog.Default(),
		Identifier:  stubIdentifier{result: result},
		Synthesizer: narration.Silent{WordsPerMinute: 1},
		Consent:     consent.NewService(db),
		Bundle:      bundle,
		Sink:        sink,
		StaticDir:   t.TempDir(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	h := New(opts)
	t.Cleanup(h.Close)
	return &testEnv{handler: h, router: h.Routes(), sink: sink}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T, body string, cookies []*http.Cookie) (createSessionResponse, []*http.Cookie) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", strings.NewReader(body), "application/json", cookies)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("create session status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp createSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return resp, mergeCookies(cookies, w.Result().Cookies())
}

func mergeCookies(old, fresh []*http.Cookie) []*http.Cookie {
	out := slices.Clone(fresh)
	for _, c := range old {
		if !slices.ContainsFunc(fresh, func(f *http.Cookie) bool { return f.Name == c.Name }) {
			out = append(out, c)
		}
	}
	return out
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateView {
	t.Helper()
	var v stateView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode state: %v (body %s)", err, w.Body.String())
	}
	return v
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", "photo.png", pngBytes(t))
	return e.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/upload?wait=true", body, ct, nil)
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	w := env.do(t, http.MethodGet, "/healthcheck", nil, "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("healthcheck = %d %q", w.Code, w.Body.String())
	}
}

func TestArtworks(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())

	w := env.do(t, http.MethodGet, "/api/artworks", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var all []models.Artwork
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != catalog.Default().Len() {
		t.Errorf("listed %d artworks, want %d", len(all), catalog.Default().Len())
	}

	w = env.do(t, http.MethodGet, "/api/artworks/great-wave", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var art models.Artwork
	if err := json.Unmarshal(w.Body.Bytes(), &art); err != nil {
		t.Fatal(err)
	}
	if art.ID != "great-wave" {
		t.Errorf("id = %q", art.ID)
	}

	w = env.do(t, http.MethodGet, "/api/artworks/missing", nil, "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing artwork status = %d, want 404", w.Code)
	}
}

func TestUploadMatchedShowsDetail(t *testing.T) {
	env := newTestEnv(t, identify.Matched("starry-night"))
	sess, _ := env.createSession(t, `{"locale":"en"}`, nil)

	w := env.upload(t, sess.SessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	v := decodeState(t, w)
	if v.View != guide.ViewDetail || v.Active == nil || v.Active.ID != "starry-night" {
		t.Fatalf("state = %+v, want detail of starry-night", v.State)
	}
	var related []string
	for _, a := range v.Related {
		related = append(related, a.ID)
	}
	want := []string{"cafe-terrace", "sunflowers"}
	if !slices.Equal(related, want) {
		t.Errorf("related = %v, want %v", related, want)
	}

	names := env.sink.names(sess.SessionID)
	if !slices.Contains(names, analytics.EventScanInitiated) || !slices.Contains(names, analytics.EventScanSuccess) {
		t.Errorf("events = %v", names)
	}
}

func TestUploadNoMatchIsLocalized(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		want   string
	}{
		{"english", "en", "Could not identify the artwork"},
		{"spanish", "es", "No se pudo identificar la obra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, identify.NoMatch())
			sess, _ := env.createSession(t, `{"locale":"`+tt.locale+`"}`, nil)
			if sess.Locale != tt.locale {
				t.Fatalf("locale = %q, want %q", sess.Locale, tt.locale)
			}

			v := decodeState(t, env.upload(t, sess.SessionID))
			if v.View != guide.ViewError || v.ErrorKind != guide.ErrorNotIdentified {
				t.Fatalf("state = %+v, want not_identified error", v.State)
			}
			if !strings.HasPrefix(v.Message, tt.want) {
				t.Errorf("message = %q, want prefix %q", v.Message, tt.want)
			}
		})
	}
}

func TestUploadFailedUsesGenericMessage(t *testing.T) {
	env := newTestEnv(t, identify.Failed(context.DeadlineExceeded))
	sess, _ := env.createSession(t, "", nil)

	v := decodeState(t, env.upload(t, sess.SessionID))
	if v.View != guide.ViewError || v.ErrorKind != guide.ErrorIdentificationFailed {
		t.Fatalf("state = %+v, want identification_failed", v.State)
	}
	if v.Message != "An unexpected error occurred during identification." {
		t.Errorf("message = %q", v.Message)
	}
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch(), func(o *Options) {
		o.Files = capture.NewFileSource(64)
	})
	sess, _ := env.createSession(t, "", nil)
	path := "/api/sessions/" + sess.SessionID + "/upload"

	body, ct := multipartBody(t, "files", "notes.txt", []byte("plain text"))
	if w := env.do(t, http.MethodPost, path, body, ct, nil); w.Code != http.StatusBadRequest {
		t.Errorf("text upload status = %d, want 400", w.Code)
	}

	body, ct = multipartBody(t, "files", "big.png", bytes.Repeat([]byte{0x89}, 1024))
	if w := env.do(t, http.MethodPost, path, body, ct, nil); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversize upload status = %d, want 413", w.Code)
	}

	body, ct = multipartBody(t, "other", "photo.png", pngBytes(t))
	if w := env.do(t, http.MethodPost, path, body, ct, nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing part status = %d, want 400", w.Code)
	}

	if w := env.do(t, http.MethodPost, path, strings.NewReader(`{}`), "application/json", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing image_url status = %d, want 400", w.Code)
	}

	// the visitor stays on the scanner after rejected uploads
	w := env.do(t, http.MethodGet, "/api/sessions/"+sess.SessionID, nil, "", nil)
	if v := decodeState(t, w); v.View != guide.ViewScanning {
		t.Errorf("view = %s, want scanning", v.View)
	}
}

func TestUploadFromURL(t *testing.T) {
	img := pngBytes(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer server.Close()

	env := newTestEnv(t, identify.Matched("great-wave"))
	sess, _ := env.createSession(t, "", nil)

	body := strings.NewReader(`{"image_url":"` + server.URL + `/wave.png"}`)
	w := env.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/upload?wait=true", body, "application/json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if v := decodeState(t, w); v.Active == nil || v.Active.ID != "great-wave" {
		t.Errorf("state = %+v, want great-wave", v.State)
	}
}

func TestUploadOutsideScanningConflicts(t *testing.T) {
	env := newTestEnv(t, identify.Matched("starry-night"))
	sess, _ := env.createSession(t, "", nil)
	env.upload(t, sess.SessionID)

	if w := env.upload(t, sess.SessionID); w.Code != http.StatusConflict {
		t.Errorf("second upload status = %d, want 409", w.Code)
	}
}

func TestRelatedAndReset(t *testing.T) {
	env := newTestEnv(t, identify.Matched("starry-night"))
	sess, _ := env.createSession(t, "", nil)
	base := "/api/sessions/" + sess.SessionID

	if w := env.do(t, http.MethodPost, base+"/related/cafe-terrace", nil, "", nil); w.Code != http.StatusConflict {
		t.Errorf("related from scanning = %d, want 409", w.Code)
	}

	env.upload(t, sess.SessionID)

	w := env.do(t, http.MethodPost, base+"/related/cafe-terrace", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("related status = %d, body = %s", w.Code, w.Body.String())
	}
	if v := decodeState(t, w); v.Active == nil || v.Active.ID != "cafe-terrace" {
		t.Errorf("active = %+v, want cafe-terrace", v.Active)
	}

	if w := env.do(t, http.MethodPost, base+"/related/no-such-work", nil, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown related = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPost, base+"/reset", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	if v := decodeState(t, w); v.View != guide.ViewScanning || v.Active != nil {
		t.Errorf("after reset = %+v", v.State)
	}

	if w := env.do(t, http.MethodPost, base+"/reset", nil, "", nil); w.Code != http.StatusConflict {
		t.Errorf("reset from scanning = %d, want 409", w.Code)
	}

	names := env.sink.names(sess.SessionID)
	if !slices.Contains(names, analytics.EventNavigateToRelated) || !slices.Contains(names, analytics.EventNavigateToScanner) {
		t.Errorf("events = %v", names)
	}
}

func TestNarration(t *testing.T) {
	env := newTestEnv(t, identify.Matched("starry-night"))
	sess, _ := env.createSession(t, "", nil)
	base := "/api/sessions/" + sess.SessionID

	if w := env.do(t, http.MethodPost, base+"/narration", nil, "", nil); w.Code != http.StatusConflict {
		t.Errorf("narration from scanning = %d, want 409", w.Code)
	}
	// stopping with nothing playing is a no-op
	if w := env.do(t, http.MethodDelete, base+"/narration", nil, "", nil); w.Code != http.StatusOK {
		t.Errorf("stop without narration = %d", w.Code)
	}

	env.upload(t, sess.SessionID)

	w := env.do(t, http.MethodPost, base+"/narration", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start narration = %d", w.Code)
	}
	if v := decodeState(t, w); !v.Narrating {
		t.Errorf("narrating = false after start")
	}

	w = env.do(t, http.MethodDelete, base+"/narration", nil, "", nil)
	if v := decodeState(t, w); v.Narrating {
		t.Errorf("narrating = true after stop")
	}

	names := env.sink.names(sess.SessionID)
	want := []string{analytics.EventNarrationStarted, analytics.EventNarrationStopped}
	var got []string
	for _, n := range names {
		if strings.HasPrefix(n, "narration_") {
			got = append(got, n)
		}
	}
	if !slices.Equal(got, want) {
		t.Errorf("narration events = %v, want %v", got, want)
	}
}

func TestScanWithoutCamera(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	sess, _ := env.createSession(t, "", nil)

	w := env.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/scan", nil, "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("scan status = %d, want 503", w.Code)
	}
}

type readyDevice struct{}

func (readyDevice) Acquire(context.Context, func(capture.CameraStatus)) (capture.Viewfinder, error) {
	return readyViewfinder{}, nil
}

type readyViewfinder struct{}

func (readyViewfinder) Status() capture.CameraStatus {
	return capture.CameraStatus{State: capture.CameraReady}
}

func (readyViewfinder) Capture() (models.Image, error) {
	return models.Image{Data: []byte{0xff, 0xd8, 0xff, 0xd9}, MIMEType: "image/jpeg"}, nil
}

func (readyViewfinder) Release() {}

func TestScanWithCamera(t *testing.T) {
	env := newTestEnv(t, identify.Matched("red-fuji"), func(o *Options) {
		o.Camera = readyDevice{}
	})
	sess, _ := env.createSession(t, "", nil)
	path := "/api/sessions/" + sess.SessionID

	deadline := time.Now().Add(2 * time.Second)
	for {
		v := decodeState(t, env.do(t, http.MethodGet, path, nil, "", nil))
		if v.Camera.State == capture.CameraReady {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("camera never ready: %+v", v.Camera)
		}
		time.Sleep(10 * time.Millisecond)
	}

	w := env.do(t, http.MethodPost, path+"/scan?wait=true", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d, body = %s", w.Code, w.Body.String())
	}
	if v := decodeState(t, w); v.Active == nil || v.Active.ID != "red-fuji" {
		t.Errorf("state = %+v, want red-fuji", v.State)
	}
}

func TestConsentRememberedPerDevice(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())

	first, cookies := env.createSession(t, "", nil)
	if !first.ConsentRequired {
		t.Fatal("first visit must require consent")
	}

	w := env.do(t, http.MethodPost, "/api/consent", nil, "", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body = %s", w.Code, w.Body.String())
	}

	// a new browser session on the same device
	var deviceOnly []*http.Cookie
	for _, c := range cookies {
		if c.Name == deviceCookie {
			deviceOnly = append(deviceOnly, c)
		}
	}
	second, _ := env.createSession(t, "", deviceOnly)
	if second.SessionID == first.SessionID {
		t.Fatal("expected a new session")
	}
	if second.ConsentRequired {
		t.Error("consent prompt shown again after acceptance")
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("device id changed: %s -> %s", first.DeviceID, second.DeviceID)
	}

	want := []string{analytics.EventAppLoadNoConsent, analytics.EventPrivacyConsentAccept}
	if got := env.sink.names(first.SessionID); !slices.Equal(got, want) {
		t.Errorf("first session events = %v, want %v", got, want)
	}
	if got := env.sink.names(second.SessionID); !slices.Equal(got, []string{analytics.EventAppLoadWithConsent}) {
		t.Errorf("second session events = %v", got)
	}

	w = env.do(t, http.MethodGet, "/api/consent", nil, "", deviceOnly)
	var resp consentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Required {
		t.Error("GET /api/consent still requires consent")
	}
}

func TestSessionCookieResumes(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())

	first, cookies := env.createSession(t, "", nil)
	second, _ := env.createSession(t, "", cookies)
	if second.SessionID != first.SessionID {
		t.Errorf("session id = %s, want resumed %s", second.SessionID, first.SessionID)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	sess, _ := env.createSession(t, "", nil)
	path := "/api/sessions/" + sess.SessionID

	if w := env.do(t, http.MethodDelete, path, nil, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, path, nil, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	sess, _ := env.createSession(t, "", nil)

	if n := env.handler.Sweep(time.Now(), time.Hour); n != 0 {
		t.Errorf("swept %d fresh sessions", n)
	}
	if n := env.handler.Sweep(time.Now().Add(2*time.Hour), time.Hour); n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}
	if w := env.do(t, http.MethodGet, "/api/sessions/"+sess.SessionID, nil, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("swept session still served: %d", w.Code)
	}
}

func TestTrackEvent(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	sess, cookies := env.createSession(t, "", nil)

	body := strings.NewReader(`{"eventName":"related_link_tapped","payload":{"exhibitId":"sunflowers","sessionId":"spoofed"}}`)
	if w := env.do(t, http.MethodPost, "/api/events", body, "application/json", cookies); w.Code != http.StatusAccepted {
		t.Fatalf("track status = %d", w.Code)
	}

	env.sink.mu.Lock()
	last := env.sink.events[len(env.sink.events)-1]
	env.sink.mu.Unlock()
	if last.Name != "related_link_tapped" || last.SessionID != sess.SessionID {
		t.Errorf("event = %+v", last)
	}
	if last.Payload["sessionId"] != sess.SessionID {
		t.Errorf("sessionId payload = %v, tracker must overwrite it", last.Payload["sessionId"])
	}

	if w := env.do(t, http.MethodPost, "/api/events", strings.NewReader(`{}`), "application/json", cookies); w.Code != http.StatusBadRequest {
		t.Errorf("empty event status = %d, want 400", w.Code)
	}

	env.sink.mu.Lock()
	recorded := len(env.sink.events)
	env.sink.mu.Unlock()
	for _, name := range []string{"a#", "scan/success", "a+", "Upper", strings.Repeat("x", 65)} {
		body := strings.NewReader(`{"eventName":"` + name + `"}`)
		if w := env.do(t, http.MethodPost, "/api/events", body, "application/json", cookies); w.Code != http.StatusBadRequest {
			t.Errorf("eventName %q status = %d, want 400", name, w.Code)
		}
	}
	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if len(env.sink.events) != recorded {
		t.Errorf("invalid event names reached the sink: %+v", env.sink.events[recorded:])
	}
}

type fixedCounter map[string]int

func (f fixedCounter) EventCounts(context.Context, time.Time) (map[string]int, error) {
	return f, nil
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch(), func(o *Options) {
		o.Stats = fixedCounter{analytics.EventScanSuccess: 3}
	})

	w := env.do(t, http.MethodGet, "/api/stats?since=1h", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var resp struct {
		Since  string         `json:"since"`
		Events map[string]int `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Since != "1h0m0s" || resp.Events[analytics.EventScanSuccess] != 3 {
		t.Errorf("stats = %+v", resp)
	}

	if w := env.do(t, http.MethodGet, "/api/stats?since=yesterday", nil, "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", w.Code)
	}
}

func TestLocales(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())

	w := env.do(t, http.MethodGet, "/api/locales/es", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("es status = %d", w.Code)
	}
	var table map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &table); err != nil {
		t.Fatal(err)
	}
	if table["try_again_button"] == "" || table["try_again_button"] == "Try Again" {
		t.Errorf("try_again_button = %q, want Spanish text", table["try_again_button"])
	}

	if w := env.do(t, http.MethodGet, "/api/locales/de", nil, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unsupported locale status = %d, want 404", w.Code)
	}
}

func TestSetLocale(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	sess, _ := env.createSession(t, "", nil)
	path := "/api/sessions/" + sess.SessionID + "/locale"

	w := env.do(t, http.MethodPut, path, strings.NewReader(`{"locale":"es"}`), "application/json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("set locale = %d", w.Code)
	}
	if v := decodeState(t, w); v.Locale != "es" {
		t.Errorf("locale = %q", v.Locale)
	}

	w = env.do(t, http.MethodPut, path, strings.NewReader(`{"locale":"klingon"}`), "application/json", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported locale status = %d, want 400", w.Code)
	}
}

func TestAcceptLanguagePicksLocale(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9,en;q=0.5")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp createSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Locale != "es" {
		t.Errorf("locale = %q, want es", resp.Locale)
	}
}

func TestSessionEventsStream(t *testing.T) {
	env := newTestEnv(t, identify.NoMatch())
	server := httptest.NewServer(env.router)
	defer server.Close()

	sess, _ := env.createSession(t, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/sessions/"+sess.SessionID+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				lines <- data
			}
		}
		close(lines)
	}()

	next := func() stateView {
		t.Helper()
		select {
		case data, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			var v stateView
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
		}
		return stateView{}
	}

	if v := next(); v.View != guide.ViewScanning || v.SessionID != sess.SessionID {
		t.Fatalf("initial event = %+v", v)
	}

	env.do(t, http.MethodPut, "/api/sessions/"+sess.SessionID+"/locale", strings.NewReader(`{"locale":"es"}`), "application/json", nil)
	for {
		if v := next(); v.Locale == "es" {
			break
		}
	}
}

func TestStaticFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>guide</h1>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, identify.NoMatch(), func(o *Options) { o.StaticDir = dir })

	tests := []struct {
		path string
		want string
	}{
		{"/", "<h1>guide</h1>"},
		{"/app.js", "console.log(1)"},
		{"/exhibit/starry-night", "<h1>guide</h1>"},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, tt.path, nil, "", nil)
		if w.Code != http.StatusOK || w.Body.String() != tt.want {
			t.Errorf("GET %s = %d %q, want %q", tt.path, w.Code, w.Body.String(), tt.want)
		}
	}
}
