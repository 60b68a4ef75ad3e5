package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sendrec/clipintake/internal/httputil"
	"github.com/sendrec/clipintake/internal/validate"
)

const multipartMemory = 32 << 20

// Handler exposes the pipeline over HTTP and observes it to keep the last
// user-visible message of every slot. It owns the temp files behind
// submitted clips and removes them once the pipeline discards them.
type Handler struct {
	pipeline       *Pipeline
	uploadDir      string
	maxUploadBytes int64
	baseCtx        context.Context

	mu       sync.Mutex
	messages [MaxSlots]string
	// selected is the path of the latest upload submitted to each slot.
	selected [MaxSlots]string
}

func NewHandler(uploadDir string, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = validate.DefaultUploadBytes
	}
	return &Handler{
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		baseCtx:        context.Background(),
	}
}

func (h *Handler) SetPipeline(p *Pipeline) {
	h.pipeline = p
}

// SetBaseContext sets the context sessions run under. Sessions outlive the
// request that submitted them.
func (h *Handler) SetBaseContext(ctx context.Context) {
	h.baseCtx = ctx
}

func (h *Handler) Progress(int, int) {}

// Committed clears the slot message unless a newer upload was selected for
// the slot after this clip's session started.
func (h *Handler) Committed(clip Clip) {
	if clip.Slot < 0 || clip.Slot >= MaxSlots {
		return
	}
	h.mu.Lock()
	if h.selected[clip.Slot] == clip.File.Path {
		h.messages[clip.Slot] = ""
	}
	h.mu.Unlock()
}

func (h *Handler) Rejected(slot int, message string) {
	h.setMessage(slot, message)
}

func (h *Handler) Discarded(file File) {
	if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("intake: failed to remove discarded upload", "path", file.Path, "error", err)
	}
}

func (h *Handler) setMessage(slot int, message string) {
	if slot < 0 || slot >= MaxSlots {
		return
	}
	h.mu.Lock()
	h.messages[slot] = message
	h.mu.Unlock()
}

func (h *Handler) selectUpload(slot int, path string) {
	h.mu.Lock()
	h.selected[slot] = path
	h.messages[slot] = ""
	h.mu.Unlock()
}

func (h *Handler) message(slot int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[slot]
}

type clipResponse struct {
	Slot        int    `json:"slot"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	PreviewURL  string `json:"previewUrl"`
	CommittedAt string `json:"committedAt"`
}

type slotResponse struct {
	Slot     int           `json:"slot"`
	State    string        `json:"state"`
	Progress int           `json:"progress"`
	Message  string        `json:"message"`
	Clip     *clipResponse `json:"clip,omitempty"`
}

type submitResponse struct {
	Accepted  bool   `json:"accepted"`
	SessionID string `json:"sessionId,omitempty"`
}

func toClipResponse(c Clip) clipResponse {
	return clipResponse{
		Slot:        c.Slot,
		Name:        c.File.Name,
		ContentType: c.File.ContentType,
		Size:        c.File.Size,
		PreviewURL:  "/api/previews/" + c.Preview,
		CommittedAt: c.CommittedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clips := h.pipeline.Clips()
	items := make([]clipResponse, 0, len(clips))
	for _, c := range clips {
		items = append(items, toClipResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	slot, msg := validate.Slot(chi.URLParam(r, "slot"))
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	resp := slotResponse{Slot: slot, State: "empty", Message: h.message(slot)}
	if clip, ok := h.pipeline.Clip(slot); ok {
		c := toClipResponse(clip)
		resp.State = "committed"
		resp.Clip = &c
	}
	if s := h.pipeline.Active(slot); s != nil {
		resp.State = "uploading"
		resp.Progress = s.Progress()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	slot, msg := validate.Slot(chi.URLParam(r, "slot"))
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, validate.UploadSize(h.maxUploadBytes+1, h.maxUploadBytes))
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	part, header, err := r.FormFile("file")
	if err != nil {
		// No file selected, nothing happens.
		httputil.WriteJSON(w, http.StatusOK, submitResponse{Accepted: false})
		return
	}
	defer func() { _ = part.Close() }()

	contentType := header.Header.Get("Content-Type")
	for _, m := range []string{
		validate.FileName(header.Filename),
		validate.ContentType(contentType),
		validate.UploadSize(header.Size, h.maxUploadBytes),
	} {
		if m != "" {
			httputil.WriteError(w, http.StatusBadRequest, m)
			return
		}
	}

	path, err := h.store(part, header.Filename)
	if err != nil {
		slog.Error("intake: failed to store upload", "slot", slot, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	h.selectUpload(slot, path)
	file := File{
		Name:        filepath.Base(header.Filename),
		Path:        path,
		ContentType: contentType,
		Size:        header.Size,
	}
	session, err := h.pipeline.Submit(h.baseCtx, file, slot)
	if err != nil {
		h.Discarded(file)
		if errors.Is(err, ErrClosed) {
			httputil.WriteError(w, http.StatusServiceUnavailable, "intake is shutting down")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session == nil {
		h.Discarded(file)
		httputil.WriteJSON(w, http.StatusOK, submitResponse{Accepted: false})
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, submitResponse{Accepted: true, SessionID: session.ID})
}

func (h *Handler) store(src io.Reader, name string) (string, error) {
	dst, err := os.CreateTemp(h.uploadDir, "clip-*"+filepath.Ext(filepath.Base(name)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	slot, msg := validate.Slot(chi.URLParam(r, "slot"))
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if !h.pipeline.Release(slot) {
		httputil.WriteError(w, http.StatusNotFound, "slot is empty")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview streams the clip behind a live preview handle.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	file, ok := h.pipeline.Previews().Lookup(chi.URLParam(r, "token"))
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "preview not found")
		return
	}

	f, err := os.Open(file.Path)
	if err != nil {
		slog.Error("intake: failed to open preview", "path", file.Path, "error", err)
		httputil.WriteError(w, http.StatusNotFound, "preview not found")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not read preview")
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, file.Name, info.ModTime(), f)
}
