package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"` // 200 on success, otherwise an error code
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  msg,
		"data": data,
	})
}

func Fail(c *gin.Context, msg string, data interface{}) {
	errorResponse := gin.H{
		"code": 500,
		"msg":  msg,
		"data": data,
	}

	// lift an error code out of data so every failure has the same shape
	if dataMap, ok := data.(gin.H); ok {
		if errorCode, exists := dataMap["error"]; exists {
			errorResponse["error"] = errorCode
		}
		if message, exists := dataMap["message"]; exists && msg == "" {
			errorResponse["msg"] = message
		}
	}

	c.JSON(http.StatusOK, errorResponse)
}

func Result(context *gin.Context, httpStatus int, code int, msg string, data gin.H) {
	context.JSON(httpStatus, gin.H{
		"code": code,
		"msg":  msg,
		"data": data,
	})
}

func AbortWithStatus(c *gin.Context, httpStatus int) {
	c.AbortWithStatus(httpStatus)
}

// AbortWithStatusJSON maps known errors to a readable message and a stable
// error code; anything else keeps its own text.
func AbortWithStatusJSON(c *gin.Context, httpStatus int, err error) {
	errorResponse := gin.H{
		"code": httpStatus,
		"msg":  err.Error(),
		"data": nil,
	}

	errorMsg := err.Error()
	switch {
	case strings.Contains(errorMsg, "unknown kind"):
		errorResponse["code"] = 400
		errorResponse["msg"] = "Unknown assessment type"
		errorResponse["error"] = "INVALID_KIND"
	case strings.Contains(errorMsg, "invalid period"):
		errorResponse["code"] = 400
		errorResponse["msg"] = "Period must be one of 7d, 30d or 90d"
		errorResponse["error"] = "INVALID_PERIOD"
	case strings.Contains(errorMsg, "room is required"):
		errorResponse["code"] = 400
		errorResponse["msg"] = "A room name is required"
		errorResponse["error"] = "ROOM_REQUIRED"
	case strings.Contains(errorMsg, "invalid room name"):
		errorResponse["code"] = 400
		errorResponse["msg"] = "Room names may only use letters, digits, '-', '_' and '.'"
		errorResponse["error"] = "INVALID_ROOM"
	case strings.Contains(errorMsg, "livekit credentials"):
		errorResponse["code"] = 503
		errorResponse["msg"] = "Voice service is not configured"
		errorResponse["error"] = "LIVEKIT_UNAVAILABLE"
	default:
		errorResponse["error"] = "UNKNOWN_ERROR"
	}

	c.AbortWithStatusJSON(httpStatus, errorResponse)
}
