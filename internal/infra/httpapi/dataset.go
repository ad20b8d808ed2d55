package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/infra/metrics"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/internal/validator"
	"go.uber.org/zap"
)

func (s *Server) listLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.Registry.Labels()
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	if labels == nil {
		labels = []entity.Label{}
	}
	respondJSON(w, http.StatusOK, labels)
}

func (s *Server) createLabel(w http.ResponseWriter, r *http.Request) {
	f, err := fields(r, 1<<20)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	name := f["label"]
	if name == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	idx, _, err := s.Registry.RegisterLabel(name, f["notes"], f["version"])
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	label, err := s.Registry.Label(idx)
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, label)
}

func (s *Server) updateLabel(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class index")
		return
	}
	var body struct {
		LabelOriginal  *string `json:"label_original"`
		Notes          *string `json:"notes"`
		DatasetVersion *string `json:"dataset_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	label, err := s.Registry.UpdateLabel(idx, registry.LabelUpdate{
		LabelOriginal:  body.LabelOriginal,
		Notes:          body.Notes,
		DatasetVersion: body.DatasetVersion,
	})
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, label)
}

func (s *Server) deleteLabel(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class index")
		return
	}
	if err := s.Registry.DeleteLabel(idx); err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) mergeLabels(w http.ResponseWriter, r *http.Request) {
	f, err := fields(r, 1<<20)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	src, err := intField(f, "src_class_idx")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	dst, err := intField(f, "dst_class_idx")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Registry.MergeLabels(src, dst); err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.SampleFilter{
		User:      q.Get("user"),
		SessionID: q.Get("session_id"),
		Source:    q.Get("source"),
	}
	if v := q.Get("class_idx"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid class_idx")
			return
		}
		filter.ClassIdx = &idx
	}
	samples, err := s.Registry.Samples(filter)
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	if samples == nil {
		samples = []entity.Sample{}
	}
	respondJSON(w, http.StatusOK, samples)
}

func (s *Server) sampleData(w http.ResponseWriter, r *http.Request) {
	path, err := s.Registry.SamplePath(chi.URLParam(r, "id"))
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) deleteSample(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.DeleteSample(chi.URLParam(r, "id")); err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// addSample imports an uploaded npz holding a "sequence" array under an existing label.
func (s *Server) addSample(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	classIdx, err := strconv.Atoi(r.FormValue("class_idx"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "class_idx must be an integer")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := entity.SampleMetadata{
		User:      r.FormValue("user"),
		SessionID: r.FormValue("session_id"),
		Source:    r.FormValue("source"),
		Dialect:   r.FormValue("dialect"),
	}
	if meta.Source == "" {
		meta.Source = entity.SourceVideo
	}
	meta.Frames, _ = strconv.Atoi(r.FormValue("frames"))
	if v := r.FormValue("duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "duration must be a number")
			return
		}
		meta.Duration = &d
	}

	path, err := s.Registry.ImportSample(classIdx, data, meta)
	if errors.Is(err, registry.ErrLabelNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessions, err := s.Registry.Sessions(registry.SessionFilter{
		User:  q.Get("user"),
		Label: q.Get("label"),
		Date:  q.Get("date"),
	})
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	if sessions == nil {
		sessions = []entity.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

type validateRequest struct {
	ExpectedT int  `json:"expected_t"`
	ExpectedD int  `json:"expected_d"`
	Fix       bool `json:"fix"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}
	report, err := s.Validator.Validate(s.Registry.FeatureRoot(), validator.Options{
		ExpectedT: req.ExpectedT,
		ExpectedD: req.ExpectedD,
		Fix:       req.Fix,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ValidatorMismatches.Set(float64(report.MismatchCount))
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	if s.Export == nil {
		unavailable(w, "dataset export")
		return
	}
	res, err := s.Export.Execute(r.Context())
	if err != nil {
		s.Logger.Error("dataset export failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}
