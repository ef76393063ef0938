package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"botswarm/internal/browser"
	"botswarm/internal/dispatch"
	"botswarm/internal/token"
	logx "botswarm/pkg/logx"
)

// Dispatcher is the dispatch entry point the API drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request, fallbackOrigin string) (dispatch.Report, error)
}

type handlers struct {
	deps Deps
}

// dispatchResponse is the terminal reply for one dispatch run.
type dispatchResponse struct {
	Success      bool                                  `json:"success"`
	Message      string                                `json:"message"`
	Failures     []dispatch.Outcome                    `json:"failures"`
	BrowserStats map[browser.Kind]dispatch.EngineStats `json:"browserStats"`
}

func (h *handlers) dispatch(c *gin.Context) {
	var req dispatch.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body: " + err.Error()})
		return
	}

	rep, err := h.deps.Dispatcher.Dispatch(c.Request.Context(), req, requestOrigin(c))
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": verr.Error()})
			return
		}
		var cerr *token.ConfigurationError
		if errors.As(err, &cerr) {
			h.deps.Log.Error("dispatch rejected, signing material missing", logx.Err(err))
		} else {
			h.deps.Log.Error("dispatch failed", logx.Err(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	status := http.StatusOK
	if !rep.AllJoined() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, dispatchResponse{
		Success:      rep.AllJoined(),
		Message:      rep.Message(),
		Failures:     rep.Failures,
		BrowserStats: rep.PerEngine,
	})
}

// requestOrigin reconstructs the caller's origin for the join-URL fallback.
func requestOrigin(c *gin.Context) string {
	if o := c.GetHeader("Origin"); o != "" {
		return o
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if c.Request.Host == "" {
		return ""
	}
	return scheme + "://" + c.Request.Host
}

func (h *handlers) history(c *gin.Context) {
	if h.deps.Store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"message": "history storage disabled"})
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be 1..500"})
			return
		}
		limit = n
	}
	recs, err := h.deps.Store.RecentRecords(c.Request.Context(), limit)
	if err != nil {
		h.deps.Log.Error("history read failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "history read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if h.deps.Supervisor != nil {
		body["supervisor"] = h.deps.Supervisor.GetSnapshot()
	}
	if info, err := host.Info(); err == nil {
		body["host"] = gin.H{
			"hostname": info.Hostname,
			"os":       info.OS,
			"platform": info.Platform,
			"uptime":   info.Uptime,
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		body["memory"] = gin.H{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	}
	c.JSON(http.StatusOK, body)
}
