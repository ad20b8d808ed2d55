package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/signdata/signdata-processing-service/internal/camera"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"go.uber.org/zap"
)

// uploadVideo stores a multipart "file" and queues it for the ingestion worker.
func (s *Server) uploadVideo(w http.ResponseWriter, r *http.Request) {
	if s.Enqueue == nil {
		unavailable(w, "video ingestion")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	res, err := s.Enqueue.Execute(r.Context(), usecase.UploadVideoRequest{
		User:        r.FormValue("user"),
		Label:       r.FormValue("label"),
		Dialect:     r.FormValue("dialect"),
		SessionID:   r.FormValue("session_id"),
		UserEmail:   r.FormValue("email"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.Logger.Error("enqueue video failed", zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

// uploadCamera always answers 200 with a CameraResult, mirroring what clients expect.
func (s *Server) uploadCamera(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	var payload camera.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusOK, usecase.CameraResult{Message: "Invalid frames payload: " + err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.Camera.Process(r.Context(), payload))
}
