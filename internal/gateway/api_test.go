// ABOUTME: Tests for the HTTP API handlers and the token guard at each entry point
// ABOUTME: Covers auth flows, scope/subject enforcement, uploads, and blob atomicity

package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/boxdrop/boxdrop/internal/auth"
	"github.com/boxdrop/boxdrop/internal/blob"
	"github.com/boxdrop/boxdrop/internal/config"
	"github.com/boxdrop/boxdrop/internal/store"
)

type testEnv struct {
	gw     *Gateway
	store  store.Store
	blobs  *blob.MemStore
	tokens *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	blobs := blob.NewMemStore()
	tokens := auth.NewTokens([]byte("test-secret"), time.Hour)
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = ":0"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		gw:     New(cfg, s, blobs, tokens, logger),
		store:  s,
		blobs:  blobs,
		tokens: tokens,
	}
}

func (e *testEnv) createBox(t *testing.T, id, name, password string) *store.Box {
	t.Helper()
	box := &store.Box{
		ID:                id,
		Name:              name,
		PasswordProtected: password != "",
		CreatedAt:         time.Now().UTC(),
	}
	if password != "" {
		box.PasswordHash = auth.HashPassword(password)
	}
	if err := e.store.CreateBox(context.Background(), box); err != nil {
		t.Fatalf("CreateBox failed: %v", err)
	}
	return box
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any) *http.Request {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) tokenCookie(t *testing.T, boxID string, scope auth.Scope) *http.Cookie {
	t.Helper()
	token, err := e.tokens.Issue(boxID, scope)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return &http.Cookie{Name: auth.CookieName(boxID), Value: token}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func TestCreateBox(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(jsonRequest(http.MethodPost, "/api/boxes", CreateBoxRequest{
		Name:     "holiday",
		Password: "secret",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "holiday", data["name"])
	assert.Equal(t, true, data["password_protected"])

	// The stored hash must never appear in the response
	if _, ok := data["password_hash"]; ok {
		t.Error("response leaked password_hash")
	}

	stored, err := e.store.GetBox(context.Background(), data["id"].(string))
	if err != nil {
		t.Fatalf("GetBox failed: %v", err)
	}
	if stored.PasswordHash != auth.HashPassword("secret") {
		t.Error("stored hash is not the password digest")
	}
}

func TestCreateBox_MissingName(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(jsonRequest(http.MethodPost, "/api/boxes", CreateBoxRequest{}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBoxAuth_PublicBox(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")

	// No password at all still authorizes a public box
	rec := e.do(jsonRequest(http.MethodPost, "/api/box-auth", AuthRequest{BoxID: "alpha"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "box_token_alpha" {
		t.Fatalf("expected box_token_alpha cookie, got %v", cookies)
	}
	if _, err := e.tokens.Verify(cookies[0].Value, "alpha", auth.ScopeReadWrite); err != nil {
		t.Errorf("issued token does not verify at read-write: %v", err)
	}
}

func TestBoxAuth_ProtectedBox(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "beta", "protected box", "secret")

	tests := []struct {
		name         string
		password     string
		wantStatus   int
		wantError    string
		wantReprompt bool
	}{
		{"missing password", "", http.StatusUnauthorized, "Password is required for this protected box", true},
		{"wrong password", "wrong", http.StatusUnauthorized, "Invalid password", true},
		{"correct password", "secret", http.StatusOK, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(jsonRequest(http.MethodPost, "/api/box-auth", AuthRequest{
				BoxID:    "beta",
				Password: tt.password,
			}))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				body := decodeBody(t, rec)
				assert.Equal(t, tt.wantError, body["error"])
				assert.Equal(t, tt.wantReprompt, body["requiresPassword"])
			}
		})
	}
}

func TestBoxAuth_UnknownBox(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(jsonRequest(http.MethodPost, "/api/box-auth", AuthRequest{BoxID: "missing"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetContent_PublicBoxNoToken(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/boxes/alpha/content", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ContentListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 0 {
		t.Errorf("expected empty content list, got %d items", len(resp.Data))
	}
	assert.Equal(t, "alpha", resp.BoxInfo.ID)
	assert.False(t, resp.BoxInfo.PasswordProtected)

	// Auto-issue delivered a usable token for the next request
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected auto-issued cookie, got %d cookies", len(cookies))
	}
	if _, err := e.tokens.Verify(cookies[0].Value, "alpha", auth.ScopeRead); err != nil {
		t.Errorf("auto-issued token does not verify: %v", err)
	}
}

func TestGetContent_ProtectedBoxNoToken(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "beta", "protected box", "secret")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/boxes/beta/content", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["requiresPassword"])
}

func TestGetContent_StaleCookieCleared(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "beta", "protected box", "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/boxes/beta/content", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName("beta"), Value: "garbage"})
	rec := e.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	// The useless cookie is expired alongside the 401, same as on writes
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "" {
		t.Fatalf("expected cleared cookie, got %v", cookies)
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("cookie max age = %d, want negative", cookies[0].MaxAge)
	}
}

func TestGetContent_UnknownBox(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/boxes/missing/content", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAuthThenReadFlow(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "beta", "protected box", "secret")

	rec := e.do(jsonRequest(http.MethodPost, "/api/box-auth", AuthRequest{
		BoxID:    "beta",
		Password: "secret",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("auth status = %d", rec.Code)
	}
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/boxes/beta/content", nil)
	req.AddCookie(cookie)
	rec = e.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("content status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUploadText_OrderedListing(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")
	cookie := e.tokenCookie(t, "alpha", auth.ScopeReadWrite)

	for _, text := range []string{"first", "second", "third"} {
		req := jsonRequest(http.MethodPost, "/api/boxes/alpha/content", UploadRequest{
			UploadType:  "text",
			TextContent: text,
		})
		req.AddCookie(cookie)
		rec := e.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/boxes/alpha/content", nil)
	req.AddCookie(cookie)
	rec := e.do(req)

	var resp ContentListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Data))
	}
	for i, want := range []string{"first", "second", "third"} {
		if resp.Data[i].Content != want {
			t.Errorf("data[%d] = %q, want %q", i, resp.Data[i].Content, want)
		}
	}
}

func TestUploadImage_BlobAndRow(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")
	cookie := e.tokenCookie(t, "alpha", auth.ScopeReadWrite)

	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	req := jsonRequest(http.MethodPost, "/api/boxes/alpha/content", UploadRequest{
		UploadType: "image",
		Name:       "pic.png",
		Base64Data: payload,
		MimeType:   "image/png",
	})
	req.AddCookie(cookie)
	rec := e.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	data, ok := e.blobs.Get(blob.KindImage, "alpha/pic.png")
	if !ok || string(data) != "png-bytes" {
		t.Errorf("blob not stored: %q, %v", data, ok)
	}

	items, err := e.store.ListContent(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("ListContent failed: %v", err)
	}
	if len(items) != 1 || items[0].Content != "alpha/pic.png" || items[0].Type != "image" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestUploadImage_DataURLPayload(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")
	cookie := e.tokenCookie(t, "alpha", auth.ScopeReadWrite)

	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	req := jsonRequest(http.MethodPost, "/api/boxes/alpha/content", UploadRequest{
		UploadType: "image",
		Name:       "pic.png",
		Base64Data: payload,
		MimeType:   "image/png",
	})
	req.AddCookie(cookie)
	rec := e.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUpload_ValidationErrors(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")
	cookie := e.tokenCookie(t, "alpha", auth.ScopeReadWrite)

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"unknown type", UploadRequest{UploadType: "video"}},
		{"text without content", UploadRequest{UploadType: "text"}},
		{"image without payload", UploadRequest{UploadType: "image", Name: "x.png"}},
		{"image with bad base64", UploadRequest{
			UploadType: "image", Name: "x.png", Base64Data: "!!!", MimeType: "image/png",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(http.MethodPost, "/api/boxes/alpha/content", tt.req)
			req.AddCookie(cookie)
			rec := e.do(req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestUpload_TokenGuard(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "beta", "box beta", "")
	e.createBox(t, "gamma", "box gamma", "")

	upload := UploadRequest{UploadType: "text", TextContent: "hello"}

	t.Run("no token", func(t *testing.T) {
		rec := e.do(jsonRequest(http.MethodPost, "/api/boxes/beta/content", upload))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["requiresPassword"])
	})

	t.Run("read scope on write", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/api/boxes/beta/content", upload)
		req.AddCookie(e.tokenCookie(t, "beta", auth.ScopeRead))
		rec := e.do(req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		body := decodeBody(t, rec)
		assert.Equal(t, "Unauthorized, invalid scope", body["error"])
		// Scope failures are structural; re-prompting cannot help
		assert.Equal(t, false, body["requiresPassword"])
	})

	t.Run("token for other box", func(t *testing.T) {
		// Token minted for beta, replayed against gamma
		token, err := e.tokens.Issue("beta", auth.ScopeReadWrite)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		req := jsonRequest(http.MethodPost, "/api/boxes/gamma/content", upload)
		req.AddCookie(&http.Cookie{Name: auth.CookieName("gamma"), Value: token})
		rec := e.do(req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		body := decodeBody(t, rec)
		assert.Equal(t, "Unauthorized, box ID does not match token box ID", body["error"])
	})

	t.Run("expired token", func(t *testing.T) {
		expired := auth.NewTokens([]byte("test-secret"), -time.Hour)
		token, err := expired.Issue("beta", auth.ScopeReadWrite)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		req := jsonRequest(http.MethodPost, "/api/boxes/beta/content", upload)
		req.AddCookie(&http.Cookie{Name: auth.CookieName("beta"), Value: token})
		rec := e.do(req)
		body := decodeBody(t, rec)
		assert.Equal(t, "Token expired, please authenticate again", body["error"])
	})

	t.Run("garbage token", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/api/boxes/beta/content", upload)
		req.AddCookie(&http.Cookie{Name: auth.CookieName("beta"), Value: "garbage"})
		rec := e.do(req)
		body := decodeBody(t, rec)
		// Distinct from the expired-token message
		assert.Equal(t, "Unauthorized, invalid token", body["error"])

		// The useless cookie is expired so the client stops replaying it
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value != "" {
			t.Errorf("expected cleared cookie, got %v", cookies)
		}
	})

	// A failed guard must never have written anything
	items, err := e.store.ListContent(context.Background(), "beta")
	if err != nil {
		t.Fatalf("ListContent failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("rejected writes still produced %d items", len(items))
	}
}

// failingStore wraps a Store and fails every InsertContent call.
type failingStore struct {
	store.Store
}

func (f *failingStore) InsertContent(context.Context, *store.ContentItem) error {
	return errors.New("insert blew up")
}

func TestUploadImage_NoOrphanOnInsertFailure(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")

	// Rebuild the gateway over a store whose metadata insert always fails
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = ":0"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := New(cfg, &failingStore{Store: e.store}, e.blobs, e.tokens, logger)

	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	req := jsonRequest(http.MethodPost, "/api/boxes/alpha/content", UploadRequest{
		UploadType: "image",
		Name:       "pic.png",
		Base64Data: payload,
		MimeType:   "image/png",
	})
	req.AddCookie(e.tokenCookie(t, "alpha", auth.ScopeReadWrite))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	// Compensating delete removed the uploaded blob
	if e.blobs.Len(blob.KindImage) != 0 {
		t.Errorf("orphaned blob left after failed insert")
	}
}

func TestContentURL(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "alpha", "public box", "")
	rwCookie := e.tokenCookie(t, "alpha", auth.ScopeReadWrite)

	// Seed one image and one text item
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	req := jsonRequest(http.MethodPost, "/api/boxes/alpha/content", UploadRequest{
		UploadType: "image", Name: "pic.png", Base64Data: payload, MimeType: "image/png",
	})
	req.AddCookie(rwCookie)
	rec := e.do(req)
	imageID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	req = jsonRequest(http.MethodPost, "/api/boxes/alpha/content", UploadRequest{
		UploadType: "text", TextContent: "hello",
	})
	req.AddCookie(rwCookie)
	rec = e.do(req)
	textID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	readCookie := e.tokenCookie(t, "alpha", auth.ScopeRead)

	t.Run("image item", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/boxes/alpha/content/"+imageID+"/url", nil)
		req.AddCookie(readCookie)
		rec := e.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["signedUrl"] == "" {
			t.Error("expected a signed URL")
		}
	})

	t.Run("text item has no blob", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/boxes/alpha/content/"+textID+"/url", nil)
		req.AddCookie(readCookie)
		rec := e.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/boxes/alpha/content/nope/url", nil)
		req.AddCookie(readCookie)
		rec := e.do(req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/boxes/alpha/content/"+imageID+"/url", nil)
		rec := e.do(req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t)
	e.createBox(t, "b1", "Holiday Photos", "")
	e.createBox(t, "b2", "work notes", "")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/search?q=holiday", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 match, got %d", len(data))
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
