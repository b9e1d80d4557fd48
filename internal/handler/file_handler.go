package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/service"
	"smart-erp-go/pkg/log"
)

// FileHandler 负责处理文件上传、查询和状态轮询的 API 请求。
type FileHandler struct {
	uploadService service.UploadService
	fileService   service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(uploadService service.UploadService, fileService service.FileService) *FileHandler {
	return &FileHandler{uploadService: uploadService, fileService: fileService}
}

// Upload 接收 multipart 表单中的 file 字段，保存后立即返回 PENDING 状态的文件记录。
func (h *FileHandler) Upload(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少上传文件")
		return
	}
	src, err := header.Open()
	if err != nil {
		failErr(c, err)
		return
	}
	defer src.Close()

	res, err := h.uploadService.Upload(c.Request.Context(), id, header.Filename, src, header.Size)
	if err != nil {
		failErr(c, err)
		return
	}
	log.Infof("文件 %s 已接收, FileID: %d", header.Filename, res.File.ID)
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "accepted", "data": res.File})
}

func (h *FileHandler) List(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	files, err := h.fileService.ListFiles(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, files)
}

func (h *FileHandler) Get(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	fileID, valid := uintParam(c, "fileId")
	if !valid {
		return
	}
	f, err := h.fileService.GetFile(c.Request.Context(), id, fileID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, f)
}

func (h *FileHandler) Delete(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	fileID, valid := uintParam(c, "fileId")
	if !valid {
		return
	}
	if err := h.fileService.DeleteFile(c.Request.Context(), id, fileID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

// Status 返回文件的处理状态快照，供前端轮询。
func (h *FileHandler) Status(c *gin.Context) {
	fileID, valid := uintParam(c, "fileId")
	if !valid {
		return
	}
	snap, err := h.fileService.GetStatus(c.Request.Context(), fileID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, snap)
}

// SupportedTypes 返回各类数据源允许上传的扩展名。
func (h *FileHandler) SupportedTypes(c *gin.Context) {
	types := []model.DataSourceType{model.DataSourceDefault, model.DataSourceSQLTable, model.DataSourceKnowledgeBase}
	out := make(map[model.DataSourceType][]model.FileType, len(types))
	for _, t := range types {
		out[t] = h.uploadService.SupportedExtensions(t)
	}
	ok(c, gin.H{"supportedExtensions": out})
}
