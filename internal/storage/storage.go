// Package storage archives call recordings in object storage.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, storedPath string, ttl time.Duration) (string, error)
}

var recordingExts = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
}

// RecordingObject names the archived recording of callID. The extension is
// taken from the source URL when it is a known audio type, else ".wav".
func RecordingObject(callID, sourceURL string) (objectName, contentType string) {
	p := sourceURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	ct, ok := recordingExts[ext]
	if !ok {
		ext, ct = ".wav", recordingExts[".wav"]
	}
	return "recordings/" + callID + ext, ct
}
