// Package assets resolves the replay's media: the companion video and the
// per-vehicle thumbnails. Lookups driven by request data are confined to
// the asset directory, and every failure resolves to "not available".
package assets

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/droneview/internal/monitoring"
	"github.com/banshee-data/droneview/internal/security"
)

// ThumbnailDir is the subdirectory of the asset directory holding
// <vehicle_id>.jpg thumbnails.
const ThumbnailDir = "car"

var logf = monitoring.Tagged("assets")

// Library locates media on disk. The zero value has no assets.
type Library struct {
	dir   string
	video string
}

// NewLibrary returns a Library rooted at dir. video may be absolute or
// relative to the working directory; "" disables the video.
func NewLibrary(dir, video string) *Library {
	return &Library{dir: dir, video: video}
}

// Dir returns the asset directory.
func (l *Library) Dir() string { return l.dir }

// ThumbnailPath returns the file backing vehicleID's thumbnail, or "" when
// there is none.
func (l *Library) ThumbnailPath(vehicleID string) string {
	if l == nil || l.dir == "" || vehicleID == "" {
		return ""
	}
	// Ids that need rewriting to be a file name have no thumbnail.
	stem := security.SanitizeFilename(vehicleID)
	if stem != vehicleID {
		return ""
	}
	p, err := security.ResolveWithin(l.dir, ThumbnailDir+"/"+stem+".jpg")
	if err != nil {
		logf("thumbnail for %q rejected: %v", vehicleID, err)
		return ""
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return p
}

// ThumbnailURL returns the HTTP path serving vehicleID's thumbnail, or ""
// when there is none.
func (l *Library) ThumbnailURL(vehicleID string) string {
	if l.ThumbnailPath(vehicleID) == "" {
		return ""
	}
	return "/api/vehicles/" + url.PathEscape(vehicleID) + "/thumbnail"
}

// HasVideo reports whether the configured video exists.
func (l *Library) HasVideo() bool {
	if l == nil || l.video == "" {
		return false
	}
	info, err := os.Stat(l.video)
	return err == nil && info.Mode().IsRegular()
}

// VideoURL returns the HTTP path of the companion video, or "".
func (l *Library) VideoURL() string {
	if !l.HasVideo() {
		return ""
	}
	return "/video"
}

// ServeThumbnail writes vehicleID's thumbnail or a 404.
func (l *Library) ServeThumbnail(w http.ResponseWriter, r *http.Request, vehicleID string) {
	p := l.ThumbnailPath(vehicleID)
	if p == "" {
		http.NotFound(w, r)
		return
	}
	if err := serveFile(w, r, p); err != nil {
		logf("serve thumbnail %s: %v", p, err)
	}
}

// ServeVideo streams the companion video. Range requests are honoured so
// players can seek.
func (l *Library) ServeVideo(w http.ResponseWriter, r *http.Request) {
	if !l.HasVideo() {
		http.NotFound(w, r)
		return
	}
	if err := serveFile(w, r, l.video); err != nil {
		logf("serve video %s: %v", l.video, err)
	}
}

// videoTypes covers containers missing from some systems' mime tables.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

func serveFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return fmt.Errorf("stat: %w", err)
	}

	if ct := contentType(path); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	// ServeContent handles Range requests, Accept-Ranges and 206 responses.
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}
