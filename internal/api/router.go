package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/go-playground/validator/v10"

	"crypto-monitor/internal/history"
	"crypto-monitor/internal/publish"
	"crypto-monitor/internal/push/dingtalk"
	"crypto-monitor/internal/scheduler"
	"crypto-monitor/internal/store"
)

type Controller interface {
	Trigger(symbol string)
	Symbol() string
	Status() scheduler.Status
}

type SnapshotSource interface {
	Get() (publish.Snapshot, bool)
}

type SeriesSource interface {
	Snapshot() history.View
}

type Records interface {
	QueryQuotes(ctx context.Context, symbol string, limit, offset int) ([]store.QuoteRecord, error)
	QueryEventsByDate(date, eventType string, limit, offset int) ([]store.EventRecord, error)
	QueryAlertsByDate(date, status string, limit, offset int) ([]store.AlertRecord, error)
}

type Pinger interface {
	Ping(ctx context.Context) (map[string]any, error)
}

// Deps wires the handlers. Records, Dingtalk and Analyst may be nil; their
// routes then answer with an error.
type Deps struct {
	Scheduler Controller
	Latest    SnapshotSource
	History   SeriesSource
	Records   Records
	Dingtalk  *dingtalk.Client
	Analyst   Pinger
	Symbols   []string
	Sources   []string
}

type SymbolRequest struct {
	Symbol string `json:"symbol" validate:"required,alphanum,max=16"`
}

type TestPushRequest struct {
	Title    string `json:"title" validate:"required"`
	Markdown string `json:"markdown" validate:"required"`
}

var validate = validator.New()

func RegisterRoutes(h *server.Hertz, d Deps) {
	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	v1 := h.Group("/api/v1")

	v1.GET("/snapshot", func(_ context.Context, c *app.RequestContext) {
		snap, ok := d.Latest.Get()
		if !ok {
			fail(c, http.StatusServiceUnavailable, "no snapshot yet")
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "snapshot": snap})
	})

	v1.GET("/state", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "state": d.Scheduler.Status()})
	})

	v1.GET("/symbols", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{
			"ok":      true,
			"current": d.Scheduler.Symbol(),
			"symbols": d.Symbols,
			"sources": d.Sources,
		})
	})

	v1.POST("/symbol", func(_ context.Context, c *app.RequestContext) {
		var req SymbolRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		req.Symbol = strings.ToLower(strings.TrimSpace(req.Symbol))
		if err := validate.Struct(req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if len(d.Symbols) > 0 && !slices.Contains(d.Symbols, req.Symbol) {
			fail(c, http.StatusBadRequest, fmt.Sprintf("unsupported symbol %q", req.Symbol))
			return
		}
		d.Scheduler.Trigger(req.Symbol)
		c.JSON(http.StatusAccepted, map[string]any{"ok": true, "symbol": req.Symbol})
	})

	v1.POST("/refresh", func(_ context.Context, c *app.RequestContext) {
		d.Scheduler.Trigger("")
		c.JSON(http.StatusAccepted, map[string]any{"ok": true, "symbol": d.Scheduler.Symbol()})
	})

	v1.GET("/history", func(_ context.Context, c *app.RequestContext) {
		v := d.History.Snapshot()
		c.JSON(http.StatusOK, map[string]any{
			"ok":        true,
			"symbol":    v.Symbol,
			"observed":  v.Observed,
			"predicted": v.Predicted,
		})
	})

	v1.GET("/quotes/history", func(ctx context.Context, c *app.RequestContext) {
		if d.Records == nil {
			fail(c, http.StatusInternalServerError, "store not configured")
			return
		}
		limit, offset, ok := page(c)
		if !ok {
			return
		}
		symbol := strings.ToLower(c.Query("symbol"))
		if symbol == "" {
			symbol = d.Scheduler.Symbol()
		}
		items, err := d.Records.QueryQuotes(ctx, symbol, limit, offset)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "symbol": symbol, "items": items})
	})

	v1.GET("/events", func(_ context.Context, c *app.RequestContext) {
		if d.Records == nil {
			fail(c, http.StatusInternalServerError, "store not configured")
			return
		}
		limit, offset, ok := page(c)
		if !ok {
			return
		}
		date := dateOrToday(c.Query("date"))
		items, err := d.Records.QueryEventsByDate(date, c.Query("type"), limit, offset)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "date": date, "items": items})
	})

	v1.GET("/alerts", func(_ context.Context, c *app.RequestContext) {
		if d.Records == nil {
			fail(c, http.StatusInternalServerError, "store not configured")
			return
		}
		limit, offset, ok := page(c)
		if !ok {
			return
		}
		date := dateOrToday(c.Query("date"))
		items, err := d.Records.QueryAlertsByDate(date, c.Query("status"), limit, offset)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "date": date, "items": items})
	})

	v1.POST("/test/push", func(ctx context.Context, c *app.RequestContext) {
		if !d.Dingtalk.Enabled() {
			fail(c, http.StatusInternalServerError, "dingtalk client not configured")
			return
		}
		var req TestPushRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := validate.Struct(req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := d.Dingtalk.SendMarkdown(ctx, req.Title, req.Markdown)
		if err != nil {
			fail(c, http.StatusBadGateway, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":               resp.OK(),
			"dingtalk_errcode": resp.ErrCode,
			"dingtalk_errmsg":  resp.ErrMsg,
		})
	})

	v1.POST("/test/analyst/ping", func(ctx context.Context, c *app.RequestContext) {
		if d.Analyst == nil {
			c.JSON(http.StatusOK, map[string]any{"ok": true, "mode": "fallback", "reason": "analyst not configured"})
			return
		}
		resp, _ := d.Analyst.Ping(ctx)
		c.JSON(http.StatusOK, resp)
	})
}

func fail(c *app.RequestContext, status int, msg string) {
	c.JSON(status, map[string]any{"ok": false, "error": msg})
}

func page(c *app.RequestContext) (int, int, bool) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	offset, err := parseOffset(c.Query("offset"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return limit, offset, true
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 200, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	return min(v, 1000), nil
}

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid offset")
	}
	return v, nil
}

func dateOrToday(raw string) string {
	if raw = strings.TrimSpace(raw); raw != "" {
		return raw
	}
	return time.Now().UTC().Format(time.DateOnly)
}
