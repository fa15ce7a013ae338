package response

import (
	"net/http"

	"finledger/pkg/errs"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeServerError = 500
)

// 业务错误码，与 pkg/errs 的错误分类一一对应
const (
	CodeValidationError = 1001
	CodeNotFound        = 1002
	CodeConflict        = 1003
	CodeInvalidState    = 1004
	CodeForbidden       = 1005
	CodeIntegrityError  = 1006
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// FromError 按错误分类返回对应的业务错误码
func FromError(c *gin.Context, err error) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		Error(c, CodeValidationError, err.Error())
	case errs.KindNotFound:
		Error(c, CodeNotFound, err.Error())
	case errs.KindConflict:
		Error(c, CodeConflict, err.Error())
	case errs.KindInvalidState:
		Error(c, CodeInvalidState, err.Error())
	case errs.KindForbidden:
		Error(c, CodeForbidden, err.Error())
	case errs.KindIntegrity:
		Error(c, CodeIntegrityError, err.Error())
	default:
		ServerError(c, err.Error())
	}
}
