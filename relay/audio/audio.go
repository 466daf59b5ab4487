// Package audio provides the shared audio helpers of the relay:
// format sniffing from magic bytes, payload validation, MIME/filename
// inference for transcription uploads, and a hardened downloader.
package audio

import (
	"bytes"
	"encoding/base64"
	"path"
	"strings"
)

// MinBytes is the smallest payload accepted as real audio. Anything
// shorter is an error page or a truncated download, never a valid
// clip.
const MinBytes = 1000

// DefaultMIME is used when neither magic bytes, URL extension nor the
// server's content type identify the payload.
const DefaultMIME = "audio/mp3"

// knownFormats maps container format to upload MIME type.
var knownFormats = map[string]string{
	"mp3":  "audio/mp3",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"webm": "audio/webm",
}

// SniffFormat identifies the container format from the payload's
// leading bytes. Returns "" when the signature is unrecognized.
func SniffFormat(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case data[0] == 0xFF && (data[1] == 0xFB || data[1] == 0xFA):
		return "mp3" // MPEG frame sync without ID3 tag
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	}
	return ""
}

// formatFromURL extracts a known audio format from the URL path
// extension, ignoring query strings.
func formatFromURL(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if _, ok := knownFormats[ext]; ok {
		return ext
	}
	return ""
}

// formatFromContentType maps an HTTP content type to a known format.
func formatFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "audio/mpeg" {
		return "mp3"
	}
	for format, mime := range knownFormats {
		if ct == mime {
			return format
		}
	}
	return ""
}

// DetectFormat resolves the container format of a downloaded clip.
// Magic bytes are authoritative; the URL extension and the server's
// content type are consulted only when the signature is unknown, and
// mp3 is the final default. CDNs routinely serve audio with wrong
// extensions and generic content types, so the payload wins.
func DetectFormat(data []byte, rawURL, contentType string) string {
	if f := SniffFormat(data); f != "" {
		return f
	}
	if f := formatFromURL(rawURL); f != "" {
		return f
	}
	if f := formatFromContentType(contentType); f != "" {
		return f
	}
	return "mp3"
}

// DetectMIME resolves the MIME type of a downloaded clip with the same
// precedence as DetectFormat.
func DetectMIME(data []byte, rawURL, contentType string) string {
	if mime, ok := knownFormats[DetectFormat(data, rawURL, contentType)]; ok {
		return mime
	}
	return DefaultMIME
}

// UploadFilename derives the filename for a multipart transcription
// upload from the source URL, defaulting to audio.mp3.
func UploadFilename(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	name := path.Base(p)
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if _, ok := knownFormats[ext]; ok && name != "." && name != "/" {
		return name
	}
	return "audio.mp3"
}

// UploadMIME returns the MIME type matching an upload filename.
func UploadMIME(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if mime, ok := knownFormats[ext]; ok {
		return mime
	}
	return DefaultMIME
}

// ToBase64 encodes the payload for inline transports.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
