package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/service"
)

// DataSourceHandler 负责处理数据源注册表相关的 API 请求。
type DataSourceHandler struct {
	dataSourceService service.DataSourceService
}

// NewDataSourceHandler 创建一个新的 DataSourceHandler 实例。
func NewDataSourceHandler(dataSourceService service.DataSourceService) *DataSourceHandler {
	return &DataSourceHandler{dataSourceService: dataSourceService}
}

// CreateDataSourceRequest 定义了创建数据源的请求体结构。
type CreateDataSourceRequest struct {
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description"`
	Type        model.DataSourceType `json:"type"`
}

// UpdateDataSourceRequest 定义了修改数据源的请求体结构，缺省字段保持不变。
type UpdateDataSourceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *DataSourceHandler) List(c *gin.Context) {
	list, err := h.dataSourceService.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, list)
}

func (h *DataSourceHandler) Get(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	ds, err := h.dataSourceService.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ds)
}

func (h *DataSourceHandler) Create(c *gin.Context) {
	var req CreateDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	ds, err := h.dataSourceService.Create(c.Request.Context(), req.Name, req.Description, req.Type)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ds)
}

func (h *DataSourceHandler) Update(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	var req UpdateDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	ds, err := h.dataSourceService.Update(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ds)
}

func (h *DataSourceHandler) Delete(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	if err := h.dataSourceService.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

// Activate 把数据源设为唯一激活的数据源。
func (h *DataSourceHandler) Activate(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	ds, err := h.dataSourceService.SetActive(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ds)
}

func (h *DataSourceHandler) Deactivate(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	if err := h.dataSourceService.Deactivate(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (h *DataSourceHandler) GetActive(c *gin.Context) {
	ds, err := h.dataSourceService.GetActive(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ds)
}
