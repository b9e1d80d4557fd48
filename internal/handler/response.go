// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"smart-erp-go/internal/service"
	"smart-erp-go/pkg/log"
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// failErr 把业务错误映射为 HTTP 状态码，未知错误统一返回 500。
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDataSourceNotFound), errors.Is(err, service.ErrFileNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateName):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDefaultDataSource),
		errors.Is(err, service.ErrInvalidDataSource),
		errors.Is(err, service.ErrUnsupportedFileType):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, err.Error())
	default:
		log.Error("请求处理失败: "+c.Request.Method+" "+c.FullPath(), err)
		fail(c, http.StatusInternalServerError, "服务器内部错误")
	}
}

// uintParam 解析路径参数，失败时直接写入 400 响应。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "无效的参数 "+name)
		return 0, false
	}
	return uint(v), true
}
