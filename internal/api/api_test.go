package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/genai-kitchen/internal/auth"
	"github.com/fpang/genai-kitchen/internal/imageio"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/kitchen"
	"github.com/fpang/genai-kitchen/internal/metrics"
	"github.com/fpang/genai-kitchen/internal/resultcache"
)

type fakeGen struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeGen) Generate(ctx context.Context, req inference.Request) (*inference.Result, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &inference.Result{
		Images: []inference.Image{{Data: []byte("out:" + req.Prompt), MIMEType: "image/png"}},
		Model:  req.Model,
	}, nil
}

func (f *fakeGen) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x >= 5 {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type testEnv struct {
	srv   *httptest.Server
	gen   *fakeGen
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("KITCHEN_MODEL", "")
	prev := metrics.SetOutput(io.Discard)
	t.Cleanup(func() { metrics.SetOutput(prev) })

	gen := &fakeGen{}
	svc, err := kitchen.NewService(context.Background(), gen)
	if err != nil {
		t.Fatal(err)
	}
	authn := auth.NewAuthenticator([]byte("test-secret"), map[string]string{"alice": "pw"}, time.Hour)
	srv := httptest.NewServer(NewServer(svc, authn).Handler())
	t.Cleanup(srv.Close)

	env := &testEnv{srv: srv, gen: gen}
	env.token = env.login(t, "alice", "pw", http.StatusOK)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, user, pass string, wantStatus int) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": user, "password": pass})
	resp := e.do(t, http.MethodPost, "/api/auth/login", bytes.NewReader(body), "application/json", false)
	if resp.StatusCode != wantStatus {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, wantStatus)
	}
	var out struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.Token
}

func (e *testEnv) generate(t *testing.T, op string, req kitchen.GenerateRequest) *http.Response {
	t.Helper()
	body, _ := json.Marshal(req)
	return e.do(t, http.MethodPost, "/api/generate/"+op, bytes.NewReader(body), "application/json", true)
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	return out["error"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/health", nil, "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["status"] != "ok" || out["model"] != inference.DefaultModelName {
		t.Errorf("health = %v", out)
	}
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice", "wrong", http.StatusUnauthorized)
	env.login(t, "", "", http.StatusBadRequest)

	resp := env.do(t, http.MethodPost, "/api/auth/login", strings.NewReader("{"), "application/json", false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/generate/empty-room"},
		{http.MethodPost, "/api/mask/edges"},
		{http.MethodGet, "/api/cache/stats"},
		{http.MethodDelete, "/api/cache"},
		{http.MethodGet, "/api/history/stats"},
		{http.MethodGet, "/api/history/export"},
		{http.MethodPost, "/api/history/undo"},
		{http.MethodPost, "/api/history/redo"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			resp := env.do(t, rt.method, rt.path, nil, "", false)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer forged.token.value")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("forged token status = %d", resp.StatusCode)
	}
}

func TestGenerateFlow(t *testing.T) {
	env := newTestEnv(t)
	src := imageio.EncodeDataURI("image/png", testPNG(t))
	req := kitchen.GenerateRequest{SourceImage: src, Prompt: "warm oak cabinets"}

	resp := env.generate(t, "style-transfer", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, errorMessage(t, resp))
	}
	var first kitchen.GenerateResponse
	json.NewDecoder(resp.Body).Decode(&first)
	if first.Cached || len(first.Images) != 1 {
		t.Errorf("first = %+v", first)
	}

	resp = env.generate(t, "style-transfer", req)
	var second kitchen.GenerateResponse
	json.NewDecoder(resp.Body).Decode(&second)
	if !second.Cached || second.Images[0] != first.Images[0] {
		t.Errorf("second = %+v", second)
	}

	resp = env.do(t, http.MethodGet, "/api/cache/stats", nil, "", true)
	var stats resultcache.Stats
	json.NewDecoder(resp.Body).Decode(&stats)
	if stats.Size != 1 || stats.MaxSize != resultcache.DefaultMaxSize {
		t.Errorf("cache stats = %+v", stats)
	}

	resp = env.do(t, http.MethodGet, "/api/workspace", nil, "", true)
	var ws kitchen.Workspace
	json.NewDecoder(resp.Body).Decode(&ws)
	if ws.Style != "warm oak cabinets" {
		t.Errorf("workspace = %+v", ws)
	}

	resp = env.do(t, http.MethodGet, "/api/history/stats?top=3", nil, "", true)
	var hs struct {
		TotalEntries int `json:"totalEntries"`
	}
	json.NewDecoder(resp.Body).Decode(&hs)
	if hs.TotalEntries != 1 {
		t.Errorf("history entries = %d", hs.TotalEntries)
	}

	resp = env.do(t, http.MethodGet, "/api/history/export", nil, "", true)
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" || !strings.Contains(resp.Header.Get("Content-Disposition"), "attachment") {
		t.Errorf("export headers = %v", resp.Header)
	}

	resp = env.do(t, http.MethodPost, "/api/history/undo", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("undo status = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/api/history/undo", nil, "", true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second undo status = %d, want 409", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/api/history/redo", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("redo status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/api/cache", nil, "", true)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear status = %d", resp.StatusCode)
	}
}

func TestGenerateErrors(t *testing.T) {
	env := newTestEnv(t)
	src := imageio.EncodeDataURI("image/png", testPNG(t))

	resp := env.generate(t, "style-transfer", kitchen.GenerateRequest{SourceImage: src})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(errorMessage(t, resp), "prompt") {
		t.Errorf("missing prompt status = %d", resp.StatusCode)
	}

	resp = env.generate(t, "repaint", kitchen.GenerateRequest{SourceImage: src})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown operation status = %d", resp.StatusCode)
	}

	env.gen.fail(&inference.ProviderError{Kind: inference.KindNetwork, Message: "image model server error"})
	resp = env.generate(t, "empty-room", kitchen.GenerateRequest{SourceImage: src})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("provider failure status = %d, want 502", resp.StatusCode)
	}
	resp = env.generate(t, "empty-room", kitchen.GenerateRequest{SourceImage: src})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("duplicate status = %d, want 429", resp.StatusCode)
	}

	env.gen.fail(&inference.ProviderError{Kind: inference.KindQuotaExceeded, Message: "rate limited"})
	resp = env.generate(t, "empty-room", kitchen.GenerateRequest{SourceImage: src, Prompt: "keep the window"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("quota status = %d, want 429", resp.StatusCode)
	}
}

func TestGenerateSuperseded(t *testing.T) {
	env := newTestEnv(t)
	src := imageio.EncodeDataURI("image/png", testPNG(t))
	delay := 200

	first := make(chan int, 1)
	go func() {
		body, _ := json.Marshal(kitchen.GenerateRequest{SourceImage: src, Prompt: "v1", DebounceKey: "edit", DebounceMs: &delay})
		req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/generate/style-transfer", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+env.token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	time.Sleep(50 * time.Millisecond)

	resp := env.generate(t, "style-transfer", kitchen.GenerateRequest{SourceImage: src, Prompt: "v2", DebounceKey: "edit", DebounceMs: &delay})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("latest request status = %d", resp.StatusCode)
	}
	if got := <-first; got != http.StatusConflict {
		t.Errorf("superseded request status = %d, want 409", got)
	}
}

func TestEdgeMaskUpload(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "kitchen.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(testPNG(t))
	mw.Close()

	resp := env.do(t, http.MethodPost, "/api/mask/edges", &body, mw.FormDataContentType(), true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/png" || resp.Header.Get("X-Mask-Coverage") == "" {
		t.Errorf("headers = %v", resp.Header)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("mask is not a PNG: %v", err)
	}

	resp = env.do(t, http.MethodPost, "/api/mask/edges", strings.NewReader("plain"), "text/plain", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-multipart status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/generate/compose", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" ||
		!strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Errorf("CORS headers = %v", resp.Header)
	}
}
