package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/callscope/callscope/internal/audio"
)

// recordingRef builds an audio store ref from the URL. The optional date
// query parameter (YYYY-MM-DD) locates the dated subdirectory; without it
// only the flat layout is searched.
func recordingRef(r *http.Request) audio.Ref {
	return audio.Ref{
		Filename: chi.URLParam(r, "file"),
		CallDate: r.URL.Query().Get("date"),
	}
}

// handleStreamRecording serves the recording audio inline for in-browser
// playback. Supports HTTP range requests for seeking in the audio player.
func (s *Server) handleStreamRecording(w http.ResponseWriter, r *http.Request) {
	ref := recordingRef(r)

	f, err := s.audio.Open(ref)
	if err != nil {
		s.writeRecordingError(w, ref, "stream recording", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Error("stream recording: failed to stat file", "error", err, "file", ref.Filename)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	filename := filepath.Base(ref.Filename)
	w.Header().Set("Content-Type", recordingContentType(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))

	// ServeContent handles Range requests for seeking support.
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

// handleDownloadRecording serves the recording file as an attachment download.
func (s *Server) handleDownloadRecording(w http.ResponseWriter, r *http.Request) {
	ref := recordingRef(r)

	path, err := s.audio.Resolve(ref)
	if err != nil {
		s.writeRecordingError(w, ref, "download recording", err)
		return
	}

	filename := filepath.Base(path)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.Header().Set("Content-Type", recordingContentType(filename))
	http.ServeFile(w, r, path)
}

// writeRecordingError maps an audio store failure to the right status code.
func (s *Server) writeRecordingError(w http.ResponseWriter, ref audio.Ref, op string, err error) {
	switch {
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "recording not found")
	case errors.Is(err, os.ErrPermission):
		slog.Error(op+": permission denied", "file", ref.Filename)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		slog.Error(op+": invalid request", "error", err, "file", ref.Filename)
		writeError(w, http.StatusBadRequest, "invalid recording reference")
	}
}

// recordingContentType resolves the MIME type from the file extension,
// defaulting to audio/wav since the recorder writes wav files.
func recordingContentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "audio/wav"
}
