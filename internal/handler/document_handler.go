package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docscan/docscan/internal/detect"
	"github.com/docscan/docscan/internal/geometry"
	"github.com/docscan/docscan/internal/models"
	"github.com/docscan/docscan/internal/repository"
	"github.com/docscan/docscan/internal/storage"
)

const (
	defaultPageSize = 30
	maxUploadBytes  = 32 << 20
)

// DocumentHandler maps the HTTP surface onto the detector and the
// documents repository. It carries no business logic: every route
// delegates and translates the error taxonomy into status codes.
type DocumentHandler struct {
	repo     repository.DocumentsRepository
	detector *detect.Detector
	store    *storage.Service
	codec    detect.ImageCodec
}

func NewDocumentHandler(repo repository.DocumentsRepository, detector *detect.Detector, store *storage.Service) *DocumentHandler {
	return &DocumentHandler{
		repo:     repo,
		detector: detector,
		store:    store,
		codec:    detect.StdCodec{},
	}
}

// Detect proposes a document boundary for the uploaded bitmap. A null
// quad in the response is a normal outcome, not an error.
func (h *DocumentHandler) Detect(c *gin.Context) {
	raw, o, err := h.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quad, err := h.detector.DetectQuad(raw, o)
	if err != nil {
		h.fail(c, err)
		return
	}

	w, hgt, err := orientedDims(raw, o)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", detect.ErrDecodeFailed, err))
		return
	}
	c.JSON(http.StatusOK, models.DetectResponse{Quad: quad, Width: w, Height: hgt})
}

// Create captures the first page of a new document. When an accepted
// quad accompanies the upload the page is rectified first; otherwise the
// oriented original is stored as-is (the manual use-as-is fallback).
func (h *DocumentHandler) Create(c *gin.Context) {
	title := c.PostForm("title")
	if title == "" {
		title = "Scanned document"
	}

	img, err := h.capturePage(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	doc, err := h.repo.CreateWithFirstPage(c.Request.Context(), title, img)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// AppendPage captures an additional page for an existing document.
func (h *DocumentHandler) AppendPage(c *gin.Context) {
	img, err := h.capturePage(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, err := h.repo.AppendPage(c.Request.Context(), c.Param("id"), img)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, page)
}

func (h *DocumentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}

	docs, err := h.repo.Fetch(c.Request.Context(), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	total, err := h.repo.Count(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ListResponse{Items: docs, Total: total, Page: page, Size: size})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, found, err := h.repo.FetchByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Rename(c *gin.Context) {
	var req models.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := &models.Document{ID: c.Param("id"), Title: req.Title}
	if err := h.repo.SaveChanges(c.Request.Context(), doc); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) DeleteAll(c *gin.Context) {
	ids, err := h.repo.DeleteAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DeleteAllResponse{DeletedIDs: ids})
}

// GetPDF serves the document's export, generating it lazily when the
// cached path no longer resolves to a file.
func (h *DocumentHandler) GetPDF(c *gin.Context) {
	id := c.Param("id")
	doc, found, err := h.repo.FetchByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	path, err := h.repo.GetPDFURL(c.Request.Context(), id, doc.PDFPath)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.FileAttachment(path, doc.Title+".pdf")
}

// ServeFile resolves a stored relative path (preview thumbnails, page
// images) and streams the file.
func (h *DocumentHandler) ServeFile(c *gin.Context) {
	// The wildcard param keeps its leading slash; the stored paths are
	// sandbox-relative.
	path, err := h.store.Resolve(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !h.store.Exists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(path)
}

// capturePage reads the uploaded bitmap and either rectifies it with the
// accepted quad or falls back to the oriented original.
func (h *DocumentHandler) capturePage(c *gin.Context) (image.Image, error) {
	raw, o, err := h.readUpload(c)
	if err != nil {
		return nil, err
	}

	if quadJSON := c.PostForm("quad"); quadJSON != "" {
		var quad geometry.Quad
		if err := json.Unmarshal([]byte(quadJSON), &quad); err != nil {
			return nil, fmt.Errorf("parsing quad: %w", err)
		}
		pointScale := 1.0
		if s := c.PostForm("pointScale"); s != "" {
			if pointScale, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("parsing pointScale: %w", err)
			}
		}
		return h.detector.Rectify(raw, o, quad, pointScale)
	}

	img, err := h.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detect.ErrDecodeFailed, err)
	}
	return h.codec.Orient(img, o), nil
}

func (h *DocumentHandler) readUpload(c *gin.Context) ([]byte, detect.Orientation, error) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		return nil, 0, fmt.Errorf("missing image upload: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("reading upload: %w", err)
	}

	o := detect.OrientUp
	if s := c.PostForm("orientation"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			o = detect.Orientation(n)
		}
	}
	return raw, o, nil
}

// fail maps the error taxonomy onto HTTP status codes.
func (h *DocumentHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrDocumentNotFound),
		errors.Is(err, storage.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidRelativePath),
		errors.Is(err, detect.ErrDecodeFailed),
		errors.Is(err, storage.ErrDecodeFailed):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNoImages):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// orientedDims reads the bitmap dimensions without a full decode,
// swapping axes for the rotated orientations so the reported size
// matches the coordinate space of the returned quad.
func orientedDims(raw []byte, o detect.Orientation) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, err
	}
	switch o {
	case detect.OrientLeftMirrored, detect.OrientRight, detect.OrientRightMirrored, detect.OrientLeft:
		return cfg.Height, cfg.Width, nil
	default:
		return cfg.Width, cfg.Height, nil
	}
}
