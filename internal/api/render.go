package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scriberr/internal/format"
	"scriberr/internal/model"
)

// renderFormatted writes result in the negotiated non-JSON shape.
func renderFormatted(c *gin.Context, accept string, result model.TranscriptionResult) {
	switch accept {
	case "text/vtt":
		c.String(http.StatusOK, format.VTT(result))
	case "text/srt":
		c.String(http.StatusOK, format.SRT(result))
	default:
		c.String(http.StatusOK, format.Text(result))
	}
}
