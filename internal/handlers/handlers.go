package handlers

import (
	"context"
	"crypto/sha1"
	"embed"
	"encoding/hex"
	"errors"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/mri-check/internal/session"
	"github.com/example/mri-check/internal/sessiontoken"
	"github.com/example/mri-check/internal/usecase"
)

// MaxUploadSize is the default limit for an uploaded image.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and headers around the image part.
const multipartOverhead = 1 << 20

//go:embed templates/*.html
var templatesFS embed.FS

var allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

var allowedContentTypes = map[string]bool{"image/jpeg": true, "image/png": true}

// SessionService is what the handlers need from the use case layer.
type SessionService interface {
	Interact(ctx context.Context, sessionID string, ev session.Event) (session.View, error)
	End(ctx context.Context, sessionID string) error
	MetricsSummary() usecase.MetricsSummary
}

type api struct {
	svc            SessionService
	maxUploadBytes int64
}

// RegisterRoutes wires the HTTP handlers to the Gin router. sessionMiddleware must place a
// session id in the request context.
func RegisterRoutes(router *gin.Engine, svc SessionService, sessionMiddleware gin.HandlerFunc, maxUploadBytes int64) {
	if maxUploadBytes <= 0 {
		maxUploadBytes = MaxUploadSize
	}
	a := &api{svc: svc, maxUploadBytes: maxUploadBytes}

	router.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/", sessionMiddleware, a.handleIndex)

	apiGroup := router.Group("/api")
	apiGroup.GET("/about", a.handleAbout)
	apiGroup.GET("/metrics", a.handleMetrics)

	sessionGroup := apiGroup.Group("", sessionMiddleware)
	{
		sessionGroup.GET("/session", a.handleRefresh)
		sessionGroup.DELETE("/session", a.handleEndSession)
		sessionGroup.POST("/upload", MaxBodySize(maxUploadBytes+multipartOverhead), a.handleUpload)
		sessionGroup.DELETE("/upload", a.handleClearUpload)
		sessionGroup.POST("/email", a.handleSubmitEmail)
		sessionGroup.POST("/email/reset", a.handleResetEmail)
	}
}

func (a *api) handleIndex(c *gin.Context) {
	view, err := a.interact(c, session.Refresh{})
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "session unavailable")
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"View":  view,
		"About": aboutContent,
	})
}

func (a *api) handleAbout(c *gin.Context) {
	c.JSON(http.StatusOK, aboutContent)
}

func (a *api) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.MetricsSummary())
}

func (a *api) handleRefresh(c *gin.Context) {
	view, err := a.interact(c, session.Refresh{})
	respondView(c, view, err)
}

func (a *api) handleEndSession(c *gin.Context) {
	sessionID, ok := sessiontoken.SessionID(c.Request.Context())
	if !ok {
		respondMessage(c, http.StatusInternalServerError, "session unavailable")
		return
	}
	if err := a.svc.End(c.Request.Context(), sessionID); err != nil {
		respondMessage(c, http.StatusInternalServerError, "session unavailable")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) handleUpload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondMessage(c, http.StatusRequestEntityTooLarge, "image is too large")
			return
		}
		respondMessage(c, http.StatusBadRequest, "image file is required")
		return
	}
	if file.Size > a.maxUploadBytes {
		respondMessage(c, http.StatusRequestEntityTooLarge, "image is too large")
		return
	}

	src, err := file.Open()
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "unable to open image")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, a.maxUploadBytes+1))
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "failed to read image")
		return
	}
	if !allowedContentTypes[http.DetectContentType(data)] {
		respondMessage(c, http.StatusUnsupportedMediaType, "only jpg, jpeg and png images are accepted")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != "" && !allowedExtensions[ext] {
		respondMessage(c, http.StatusUnsupportedMediaType, "only jpg, jpeg and png images are accepted")
		return
	}

	view, err := a.interact(c, session.Upload{
		Identity: uploadIdentity(file.Filename, data),
		Name:     filepath.Base(file.Filename),
		Image:    data,
	})
	respondView(c, view, err)
}

func (a *api) handleClearUpload(c *gin.Context) {
	view, err := a.interact(c, session.ClearUpload{})
	respondView(c, view, err)
}

func (a *api) handleSubmitEmail(c *gin.Context) {
	var payload struct {
		Email string `json:"email" form:"email"`
	}
	if err := c.ShouldBind(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := a.interact(c, session.SubmitEmail{Address: payload.Email})
	respondView(c, view, err)
}

func (a *api) handleResetEmail(c *gin.Context) {
	view, err := a.interact(c, session.ResetEmail{})
	respondView(c, view, err)
}

func (a *api) interact(c *gin.Context, ev session.Event) (session.View, error) {
	sessionID, ok := sessiontoken.SessionID(c.Request.Context())
	if !ok {
		return session.View{}, errors.New("request has no session")
	}
	return a.svc.Interact(c.Request.Context(), sessionID, ev)
}

// uploadIdentity names an upload by file name and content so a different file under the same
// name still counts as a new upload.
func uploadIdentity(name string, data []byte) string {
	sum := sha1.Sum(data)
	return filepath.Base(name) + "#" + hex.EncodeToString(sum[:])[:12]
}

func respondView(c *gin.Context, view session.View, err error) {
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "session unavailable")
		return
	}
	status := http.StatusOK
	if view.Error != nil {
		status = view.Error.Kind.HTTPStatus()
	}
	c.JSON(status, view)
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
