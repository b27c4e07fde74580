package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trafficvision/sign-detection-service/detections"
)

type appState struct {
	pool *detectorPool
	log  *zap.SugaredLogger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func runServe(log *zap.SugaredLogger, cfg detections.Config, addr string, poolSize int) int {
	pool, err := newDetectorPool(cfg, detections.GTSRB(), poolSize, log)
	if err != nil {
		log.Errorf("startup failed: %v", err)
		return 1
	}
	defer pool.destroy()

	state := &appState{pool: pool, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/detect", state.handleDetect).Methods("POST")
	r.HandleFunc("/labels", state.handleLabels).Methods("GET")
	r.HandleFunc("/metrics", state.handleMetrics).Methods("GET")

	srv := &http.Server{
		Handler:      r,
		Addr:         addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Infof("starting server on %s with %d pooled detectors", addr, pool.size)
	if err := srv.ListenAndServe(); err != nil {
		log.Errorf("server stopped: %v", err)
		return 1
	}
	return 0
}

func (s *appState) handleDetect(w http.ResponseWriter, r *http.Request) {
	name, imgBytes, err := readImageRequest(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	detector, err := s.pool.acquire(r.Context())
	if err != nil {
		sendErrorResponse(w, "detector_unavailable", err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.pool.release(detector)

	rec := detector.DetectBytes(name, imgBytes)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *appState) handleLabels(w http.ResponseWriter, _ *http.Request) {
	catalog := detections.GTSRB()
	labels := make(map[int]string, catalog.Size())
	for id := 0; id < catalog.Size(); id++ {
		labels[id] = catalog.Label(id)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"total_classes": catalog.Size(),
		"labels":        labels,
	})
}

func (s *appState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.pool.getMetrics())
}

// readImageRequest extracts the encoded image from the request body:
// base64 inside a JSON envelope, a multipart upload, or the raw body.
func readImageRequest(r *http.Request) (string, []byte, error) {
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		data, err := readJSONImage(r)
		return "upload.json", data, err
	case strings.HasPrefix(contentType, "multipart/form-data"):
		return readMultipartImage(r)
	default:
		data, err := io.ReadAll(r.Body)
		return "upload", data, err
	}
}

func readJSONImage(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.Image == "" {
		return nil, fmt.Errorf("missing image field")
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func readMultipartImage(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		return "", nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	return header.Filename, data, err
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
