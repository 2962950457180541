// ABOUTME: HTTP API handlers for box lifecycle, authentication, and content access
// ABOUTME: Applies the verify-then-delegate token guard at every content entry point

package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boxdrop/boxdrop/internal/auth"
	"github.com/boxdrop/boxdrop/internal/blob"
	"github.com/boxdrop/boxdrop/internal/store"
)

// CreateBoxRequest is the JSON request body for POST /api/boxes.
type CreateBoxRequest struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

// BoxResponse is the JSON shape of a box. The password hash never leaves
// the store layer.
type BoxResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PasswordProtected bool   `json:"password_protected"`
	CreatedAt         string `json:"created_at"`
}

// AuthRequest is the JSON request body for POST /api/box-auth.
type AuthRequest struct {
	BoxID    string `json:"boxId"`
	Password string `json:"password,omitempty"`
}

// UploadRequest is the JSON request body for POST /api/boxes/{id}/content.
type UploadRequest struct {
	UploadType  string `json:"uploadType"`
	TextContent string `json:"textContent,omitempty"`
	Name        string `json:"name,omitempty"`
	Base64Data  string `json:"base64Data,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ContentItemResponse is the JSON shape of one content item.
type ContentItemResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// BoxInfo accompanies a content listing.
type BoxInfo struct {
	ID                string `json:"id"`
	PasswordProtected bool   `json:"passwordProtected"`
}

// ContentListResponse is the JSON response for GET /api/boxes/{id}/content.
type ContentListResponse struct {
	Data    []ContentItemResponse `json:"data"`
	BoxInfo BoxInfo               `json:"boxInfo"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAuthError maps a verification or credential failure onto the wire:
// 401 plus a requiresPassword flag telling the client whether re-prompting
// for the password can help.
func writeAuthError(w http.ResponseWriter, msg string, requiresPassword bool) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error":            msg,
		"requiresPassword": requiresPassword,
	})
}

// handleCreateBox handles POST /api/boxes.
func (g *Gateway) handleCreateBox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CreateBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required and must be a string")
		return
	}

	box := &store.Box{
		ID:                uuid.NewString(),
		Name:              req.Name,
		PasswordProtected: req.Password != "",
		CreatedAt:         time.Now().UTC(),
	}
	if req.Password != "" {
		box.PasswordHash = auth.HashPassword(req.Password)
	}

	if err := g.store.CreateBox(r.Context(), box); err != nil {
		g.logger.Error("creating box", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create box")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": boxResponse(box)})
}

// handleBoxAuth handles POST /api/box-auth: the initial access step that
// converts a password (or the lack of one) into a capability token cookie.
func (g *Gateway) handleBoxAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BoxID == "" {
		writeError(w, http.StatusBadRequest, "Box ID is required and must be a string")
		return
	}

	box, err := g.store.GetBox(r.Context(), req.BoxID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Box not found")
		return
	}
	if err != nil {
		g.logger.Error("loading box", "box_id", req.BoxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch err := auth.VerifyPassword(box.PasswordProtected, box.PasswordHash, req.Password); {
	case errors.Is(err, auth.ErrPasswordRequired):
		writeAuthError(w, "Password is required for this protected box", true)
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		writeAuthError(w, "Invalid password", true)
		return
	case errors.Is(err, auth.ErrBoxMisconfigured):
		g.logger.Error("box marked as protected but no password hash found", "box_id", box.ID)
		writeError(w, http.StatusInternalServerError, "Box configuration error")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Authorized implies immediate issuance. Any authorized holder may
	// write, so the minted scope is read-write.
	if !g.issueToken(w, r, box.ID) {
		return
	}
	w.WriteHeader(http.StatusOK)
}

// issueToken mints a read-write token for a box and delivers it as the
// per-box cookie. Reports whether the response is still open.
func (g *Gateway) issueToken(w http.ResponseWriter, r *http.Request, boxID string) bool {
	token, err := g.tokens.Issue(boxID, auth.ScopeReadWrite)
	if err != nil {
		g.logger.Error("issuing token", "box_id", boxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return false
	}
	auth.SetTokenCookie(w, r, boxID, token, g.tokens.TTL())
	return true
}

// handleBoxSubtree dispatches /api/boxes/{id}/content and
// /api/boxes/{id}/content/{contentID}/url.
func (g *Gateway) handleBoxSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/boxes/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[1] == "content":
		boxID := parts[0]
		switch r.Method {
		case http.MethodGet:
			g.handleGetContent(w, r, boxID)
		case http.MethodPost:
			g.handleUploadContent(w, r, boxID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 4 && parts[1] == "content" && parts[3] == "url":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleContentURL(w, r, parts[0], parts[2])
	default:
		http.NotFound(w, r)
	}
}

// authorize runs the token guard for one entry point: extract the per-box
// cookie, verify against the operation's required scope, and translate
// failures onto the wire. On success the verified claims are attached to
// the request context; on failure the error response has been written and
// nil is returned.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, boxID string, required auth.Scope) *http.Request {
	token := auth.TokenFromRequest(r, boxID)
	claims, err := g.tokens.Verify(token, boxID, required)
	if err != nil {
		// A presented token that failed for a re-auth reason is useless;
		// expire the cookie so the client doesn't keep replaying it.
		if token != "" && auth.ReauthRequired(err) {
			auth.ClearTokenCookie(w, r, boxID)
		}
		writeAuthError(w, auth.ErrorMessage(err), auth.ReauthRequired(err))
		return nil
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

// handleGetContent handles GET /api/boxes/{id}/content. Requires read
// scope. Unprotected boxes are reachable with no credential at all: when
// verification fails with a re-auth class, a token is minted on the spot.
func (g *Gateway) handleGetContent(w http.ResponseWriter, r *http.Request, boxID string) {
	box, err := g.store.GetBox(r.Context(), boxID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Box not found")
		return
	}
	if err != nil {
		g.logger.Error("loading box", "box_id", boxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token := auth.TokenFromRequest(r, boxID)
	if _, err := g.tokens.Verify(token, boxID, auth.ScopeRead); err != nil {
		autoIssue := !box.PasswordProtected && g.cfg.AutoIssuePublicEnabled() && auth.ReauthRequired(err)
		if !autoIssue {
			if token != "" && auth.ReauthRequired(err) {
				auth.ClearTokenCookie(w, r, boxID)
			}
			writeAuthError(w, auth.ErrorMessage(err), auth.ReauthRequired(err))
			return
		}
		if !g.issueToken(w, r, boxID) {
			return
		}
	}

	items, err := g.store.ListContent(r.Context(), boxID)
	if err != nil {
		g.logger.Error("listing content", "box_id", boxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch content")
		return
	}

	resp := ContentListResponse{
		Data:    make([]ContentItemResponse, 0, len(items)),
		BoxInfo: BoxInfo{ID: box.ID, PasswordProtected: box.PasswordProtected},
	}
	for _, item := range items {
		resp.Data = append(resp.Data, contentResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUploadContent handles POST /api/boxes/{id}/content. Requires
// read-write scope. The write is delegated with the token's subject as the
// box id; the path id only selects the cookie and is cross-checked by the
// verifier's subject check.
func (g *Gateway) handleUploadContent(w http.ResponseWriter, r *http.Request, boxID string) {
	r = g.authorize(w, r, boxID, auth.ScopeReadWrite)
	if r == nil {
		return
	}
	claims := auth.ClaimsFromContext(r.Context())

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.UploadType {
	case store.ContentTypeText:
		g.uploadText(w, r, claims.BoxID, req)
	case store.ContentTypeImage, store.ContentTypeFile:
		g.uploadBlob(w, r, claims.BoxID, req)
	default:
		writeError(w, http.StatusBadRequest,
			"Upload type is required and must be either image, file, or text")
	}
}

func (g *Gateway) uploadText(w http.ResponseWriter, r *http.Request, boxID string, req UploadRequest) {
	if req.TextContent == "" {
		writeError(w, http.StatusBadRequest, "Text content is required and must be a string")
		return
	}

	item := &store.ContentItem{
		ID:        uuid.NewString(),
		BoxID:     boxID,
		Type:      store.ContentTypeText,
		Content:   req.TextContent,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.InsertContent(r.Context(), item); err != nil {
		g.logger.Error("inserting text content", "box_id", boxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to insert text into database")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": contentResponse(item)})
}

func (g *Gateway) uploadBlob(w http.ResponseWriter, r *http.Request, boxID string, req UploadRequest) {
	if req.Name == "" || req.Base64Data == "" || req.MimeType == "" {
		writeError(w, http.StatusBadRequest,
			"Base64 data and mime type are required for image/file uploads")
		return
	}

	data, err := decodeBase64Payload(req.Base64Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Base64 data is not valid")
		return
	}

	kind, _ := blob.KindForContentType(req.UploadType)
	key := boxID + "/" + req.Name

	// Blob first, then the row. Both must succeed or the operation fails
	// as a whole.
	if err := g.blobs.Put(r.Context(), kind, key, data, req.MimeType); err != nil {
		g.logger.Error("uploading blob", "box_id", boxID, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload to storage")
		return
	}

	item := &store.ContentItem{
		ID:        uuid.NewString(),
		BoxID:     boxID,
		Type:      req.UploadType,
		Content:   key,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.InsertContent(r.Context(), item); err != nil {
		g.logger.Error("inserting content metadata", "box_id", boxID, "key", key, "error", err)
		// Compensate so the blob doesn't outlive its missing metadata row.
		// The retention sweep reclaims the prefix anyway, so a failed
		// compensation is logged, not fatal on top of the insert failure.
		if delErr := g.blobs.Delete(r.Context(), kind, []string{key}); delErr != nil {
			g.logger.Warn("orphaned blob left behind", "key", key, "error", delErr)
		}
		writeError(w, http.StatusInternalServerError, "Failed to insert into database")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": contentResponse(item)})
}

// handleContentURL handles GET /api/boxes/{id}/content/{contentID}/url.
// Requires read scope. Returns a time-limited download URL for an image or
// file item.
func (g *Gateway) handleContentURL(w http.ResponseWriter, r *http.Request, boxID, contentID string) {
	r = g.authorize(w, r, boxID, auth.ScopeRead)
	if r == nil {
		return
	}
	claims := auth.ClaimsFromContext(r.Context())

	item, err := g.store.GetContent(r.Context(), claims.BoxID, contentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Content not found")
		return
	}
	if err != nil {
		g.logger.Error("loading content item", "box_id", boxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	kind, ok := blob.KindForContentType(item.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Content item has no downloadable blob")
		return
	}

	url, err := g.blobs.SignedGetURL(r.Context(), kind, item.Content)
	if err != nil {
		g.logger.Error("creating signed URL", "key", item.Content, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create signed URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"signedUrl": url})
}

// handleSearch handles GET /api/search?q=. Plain substring search over box
// names; listing is not part of the token boundary.
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	boxes, err := g.store.SearchBoxes(r.Context(), query)
	if err != nil {
		g.logger.Error("searching boxes", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to search boxes")
		return
	}

	resp := make([]BoxResponse, 0, len(boxes))
	for _, box := range boxes {
		resp = append(resp, boxResponse(box))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": resp})
}

func boxResponse(box *store.Box) BoxResponse {
	return BoxResponse{
		ID:                box.ID,
		Name:              box.Name,
		PasswordProtected: box.PasswordProtected,
		CreatedAt:         box.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func contentResponse(item *store.ContentItem) ContentItemResponse {
	return ContentItemResponse{
		ID:        item.ID,
		Type:      item.Type,
		Content:   item.Content,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// decodeBase64Payload accepts either a bare base64 string or a data URL
// ("data:image/png;base64,....") and returns the raw bytes.
func decodeBase64Payload(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[idx+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
