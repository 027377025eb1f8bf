package handler

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatforge/internal/app"
	"chatforge/internal/transport/http/response"
)

type ConfigHandler struct {
	configService *app.ConfigService
}

func NewConfigHandler(configService *app.ConfigService) *ConfigHandler {
	return &ConfigHandler{configService: configService}
}

// Create accepts a multipart form: a "config" part holding the configuration
// JSON and zero or more "files" parts holding knowledge documents.
func (h *ConfigHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	in, fileHeaders, _, ok := bindConfigForm(c)
	if !ok {
		return
	}

	files, closeFiles, err := openUploads(fileHeaders)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable upload")
		return
	}
	defer closeFiles()

	cfg, err := h.configService.Create(c.Request.Context(), userID, in, files)
	if err != nil {
		mapConfigError(c, err, "create config failed")
		return
	}
	response.OK(c, cfg)
}

func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.configService.Get(c.Param("id"), identityFromContext(c))
	if err != nil {
		mapConfigError(c, err, "fetch config failed")
		return
	}
	response.OK(c, cfg)
}

func (h *ConfigHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	configs, err := h.configService.List(userID)
	if err != nil {
		mapConfigError(c, err, "list configs failed")
		return
	}
	response.OK(c, configs)
}

func (h *ConfigHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	in, fileHeaders, filesToDelete, ok := bindConfigForm(c)
	if !ok {
		return
	}

	files, closeFiles, err := openUploads(fileHeaders)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable upload")
		return
	}
	defer closeFiles()

	cfg, err := h.configService.Update(c.Request.Context(), userID, c.Param("id"), in, files, filesToDelete)
	if err != nil {
		mapConfigError(c, err, "update config failed")
		return
	}
	response.OK(c, cfg)
}

func (h *ConfigHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	configID := c.Param("id")
	if err := h.configService.Delete(c.Request.Context(), userID, configID); err != nil {
		mapConfigError(c, err, "delete config failed")
		return
	}
	response.OK(c, gin.H{"deleted_config_id": configID})
}

func bindConfigForm(c *gin.Context) (app.ConfigInput, []*multipart.FileHeader, []string, bool) {
	var in app.ConfigInput

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return in, nil, nil, false
	}

	raw := c.PostForm("config")
	if raw == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing config part")
		return in, nil, nil, false
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid config json")
		return in, nil, nil, false
	}

	var filesToDelete []string
	if rawDelete := c.PostForm("files_to_delete"); rawDelete != "" {
		if err := json.Unmarshal([]byte(rawDelete), &filesToDelete); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid files_to_delete json")
			return in, nil, nil, false
		}
	}

	return in, form.File["files"], filesToDelete, true
}

func openUploads(headers []*multipart.FileHeader) ([]app.UploadFile, func(), error) {
	files := make([]app.UploadFile, 0, len(headers))
	closers := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}

	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, f)
		files = append(files, app.UploadFile{Name: header.Filename, Reader: f})
	}
	return files, closeAll, nil
}

func mapConfigError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "not the owner of this config")
	case errors.Is(err, app.ErrConfigNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConfigNotFound, "config not found")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
