package echogw

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/live"
	"github.com/victorpuello/kampus-sub004/services/kampusapi"
)

type liveApi struct {
	feed     *live.Orchestrator
	kampus   *kampusapi.Client
	archive  live.Archive
	relay    *Relay
	validate *validator.Validate
}

func registerLiveAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *liveApi) {
	ag := g.Group("", jwt)

	ag.GET("/processes", api.processQuery)

	lg := ag.Group("/live")
	lg.GET("", api.liveRetrieve)
	lg.GET("/mode", api.liveMode)
	lg.PUT("/config", api.liveConfigure, adminMiddleware())
	lg.GET("/stream", api.liveStream)
	lg.GET("/history", api.liveHistory)
}

// liveState is the feed as a presentation layer sees it: the reconciled
// snapshot, which transport is authoritative and the latest fetch failure.
// Archived marks a snapshot served from the archive while the feed is cold.
type liveState struct {
	ProcessID int                   `json:"process_id"`
	Config    live.MonitoringConfig `json:"config"`
	Mode      live.Mode             `json:"mode"`
	State     live.State            `json:"state"`
	Loading   bool                  `json:"loading"`
	Error     string                `json:"error,omitempty"`
	Snapshot  *live.Snapshot        `json:"snapshot,omitempty"`
	Archived  bool                  `json:"archived,omitempty"`
}

func (api *liveApi) state(withSnapshot bool) liveState {
	processID, cfg := api.feed.Config()
	st := liveState{
		ProcessID: processID,
		Config:    cfg,
		Mode:      api.feed.Mode(),
		State:     api.feed.State(),
		Loading:   api.feed.Loading(),
	}
	if err := api.feed.Err(); err != nil {
		st.Error = err.Error()
	}
	if withSnapshot {
		st.Snapshot = api.feed.Current()
	}
	return st
}

// Handlers

func (api *liveApi) processQuery(ctx echo.Context) error {
	procs, err := api.kampus.Processes(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, procs)
}

func (api *liveApi) liveRetrieve(ctx echo.Context) error {
	st := api.state(true)

	// while the feed has not committed yet, the last archived snapshot
	// beats an empty dashboard
	if st.Snapshot == nil && st.ProcessID != 0 && api.archive != nil {
		if arch, err := api.archive.LatestSnapshot(ctx.Request().Context(), st.ProcessID); err == nil && arch != nil {
			st.Snapshot = arch.Snapshot
			st.Archived = true
		}
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *liveApi) liveMode(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.state(false))
}

type configRequest struct {
	ProcessID   int                    `json:"process_id" validate:"required,min=1"`
	Preset      string                 `json:"preset" validate:"omitempty,oneof=conservative standard sensitive"`
	Config      *live.MonitoringConfig `json:"config" validate:"required_without=Preset"`
	PushEnabled *bool                  `json:"push_enabled"`
}

func (api *liveApi) liveConfigure(ctx echo.Context) error {
	data := new(configRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	var cfg live.MonitoringConfig
	if data.Preset != "" {
		cfg, _ = live.Preset(data.Preset)
	} else {
		cfg = *data.Config
		if err := cfg.Validate(api.validate); err != nil {
			return err
		}
	}

	if data.PushEnabled != nil {
		api.feed.SetPushEnabled(*data.PushEnabled)
	}
	api.feed.Reconfigure(data.ProcessID, cfg)

	return ctx.JSON(http.StatusOK, api.state(false))
}

func (api *liveApi) liveStream(ctx echo.Context) error {
	res := ctx.Response()
	if _, ok := res.Writer.(http.Flusher); !ok {
		// echo's Response.Flush panics on a non-flushable writer; a server
		// mounted on one can never stream and should not keep running
		return core.NewShutdownError("live stream: response writer is not flushable")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ch := api.relay.subscribe()
	defer api.relay.unsubscribe(ch)

	// replay the held snapshot so a fresh client does not wait a full tick
	if snap := api.feed.Current(); snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			if _, err = res.Write(snapshotEvent(data)); err != nil {
				return nil
			}
			res.Flush()
		}
	}

	for {
		select {
		case <-ctx.Request().Context().Done():
			return nil
		case data := <-ch:
			if _, err := res.Write(snapshotEvent(data)); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (api *liveApi) liveHistory(ctx echo.Context) error {
	if api.archive == nil {
		return errHttpNotFound
	}

	processID, _ := api.feed.Config()
	if raw := ctx.QueryParam("process_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid process_id")
		}
		processID = id
	}

	var from, to time.Time
	var err error
	if raw := ctx.QueryParam("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	if raw := ctx.QueryParam("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	rows, err := api.archive.SnapshotHistory(ctx.Request().Context(), processID, from, to, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}
