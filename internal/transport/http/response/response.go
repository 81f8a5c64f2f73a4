package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest          = 40000
	CodeInvalidSession      = 40001
	CodeInvalidFile         = 40002
	CodeNoText              = 40003
	CodeInternalServer      = 50000
	CodeUpstreamUnavailable = 50300
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// OK writes data as the response body with status 200.
func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, ErrorBody{
		Error: message,
		Code:  code,
	})
}

// Abort writes an error and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Error: message,
		Code:  code,
	})
}
