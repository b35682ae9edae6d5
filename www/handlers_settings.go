package www

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"storedesk/blobstore"
	"storedesk/engine"
	"storedesk/store"
)

// recentAuditLimit is how many audit entries the settings page lists.
const recentAuditLimit = 20

func (h *Handlers) handleSettings(w http.ResponseWriter, r *http.Request) {
	profile, err := h.engine.EnsureProfile(h.getUsername(r))
	cfg := h.engine.AppConfig()
	audit, aerr := h.engine.DB().ListAuditLog(recentAuditLimit)
	if aerr != nil {
		log.Printf("www: list audit log: %v", aerr)
	}
	data := map[string]any{
		"Page":          "settings",
		"Profile":       profile,
		"Threshold":     h.engine.LowStockThreshold(),
		"AvatarEnabled": h.engine.Blobs().Enabled(),
		"AuthProvider":  cfg.Auth.Provider,
		"Messaging":     cfg.Messaging.Backend,
		"MsgConnected":  h.engine.MessagingConnected(),
		"BackendOK":     h.engine.BackendConnected(),
		"Saved":         r.URL.Query().Get("saved") != "",
		"Audit":         audit,
	}
	h.renderPage(w, r, "settings.html", data, err, "Failed to load settings")
}

func (h *Handlers) handleSettingsProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user := h.getUsername(r)
	profile, err := h.engine.EnsureProfile(user)
	if err == nil {
		_, err = h.engine.UpdateProfile(r.Context(), profile.ID, engine.ProfileUpdate{
			FullName: r.FormValue("full_name"),
			Phone:    r.FormValue("phone"),
			Address:  r.FormValue("address"),
		}, user)
	}
	if err != nil {
		log.Printf("www: update profile for %s: %v", user, err)
		redirectWithError(w, r, "/settings", "Failed to save profile")
		return
	}
	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
}

func (h *Handlers) handleSettingsAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, blobstore.MaxAvatarSize+64<<10)
	if err := r.ParseMultipartForm(blobstore.MaxAvatarSize); err != nil {
		redirectWithError(w, r, "/settings", "Avatar must be an image under 2 MB")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		redirectWithError(w, r, "/settings", "Choose an image to upload")
		return
	}
	defer file.Close()

	contentType, err := sniffContentType(file)
	if err == nil && !blobstore.AvatarType(contentType) {
		err = fmt.Errorf("%w: content looks like %s", blobstore.ErrInvalidAvatar, contentType)
	}
	user := h.getUsername(r)
	var profile *store.Profile
	if err == nil {
		profile, err = h.engine.EnsureProfile(user)
	}
	if err == nil {
		_, err = h.engine.UploadAvatar(r.Context(), profile.ID, file, header.Size, contentType, user)
	}
	switch {
	case err == nil:
		http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
	case errors.Is(err, blobstore.ErrDisabled):
		redirectWithError(w, r, "/settings", "Avatar uploads are not configured")
	case errors.Is(err, blobstore.ErrInvalidAvatar):
		redirectWithError(w, r, "/settings", "Avatar must be a PNG, JPEG, GIF or WebP image under 2 MB")
	case errors.Is(err, store.ErrNotFound):
		redirectWithError(w, r, "/settings", "Profile not found")
	default:
		log.Printf("www: upload avatar for %s: %v", user, err)
		redirectWithError(w, r, "/settings", "Failed to upload avatar")
	}
}

// sniffContentType detects the type of an upload from its first 512 bytes and
// rewinds it. The client's declared Content-Type is not trusted.
func sniffContentType(f io.ReadSeeker) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func (h *Handlers) handleSettingsThreshold(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("threshold")))
	if err != nil || n < 0 {
		redirectWithError(w, r, "/settings", "Threshold must be a whole number of zero or more")
		return
	}
	if err := h.engine.SetLowStockThreshold(n, h.getUsername(r)); err != nil {
		log.Printf("www: set low stock threshold: %v", err)
		redirectWithError(w, r, "/settings", "Failed to save threshold")
		return
	}
	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
}

// handleSettingsReconnect re-dials the messaging broker and re-checks the
// hosted auth backend with the current configuration.
func (h *Handlers) handleSettingsReconnect(w http.ResponseWriter, r *http.Request) {
	h.engine.ReconfigureMessaging()
	h.engine.ReconfigureBackend()
	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
}
