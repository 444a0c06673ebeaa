package kampusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/r3labs/sse/v2"

	"github.com/victorpuello/kampus-sub004/core/live"
)

// OpenStream implements live.StreamOpener: it subscribes to the backend's
// push endpoint and delivers named "snapshot" events. Reconnection is
// disabled on purpose; a dropped stream is terminal and the orchestrator
// owns the fallback policy.
func (c *Client) OpenStream(ctx context.Context, processID int, cfg live.MonitoringConfig) (live.Stream, error) {
	query := url.Values{}
	query.Set("windowMinutes", strconv.Itoa(cfg.WindowMinutes))
	query.Set("blankRateThreshold", strconv.FormatFloat(cfg.BlankRateThreshold, 'f', -1, 64))
	query.Set("inactivityMinutes", strconv.Itoa(cfg.InactivityMinutes))
	query.Set("spikeThreshold", strconv.Itoa(cfg.SpikeThreshold))
	query.Set("seriesLimit", strconv.Itoa(cfg.SeriesLimit))

	endpoint := fmt.Sprintf("%s/processes/%d/live-dashboard/stream?%s", c.baseURL, processID, query.Encode())
	client := sse.NewClient(endpoint)
	client.Connection = c.stream
	client.ReconnectStrategy = &backoff.StopBackOff{}
	if token := c.token(ctx); token != "" {
		client.Headers["Authorization"] = "Bearer " + token
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &sseStream{
		snaps:  make(chan *live.Snapshot),
		fails:  make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if string(msg.Event) != "snapshot" {
				return
			}
			snap := new(live.Snapshot)
			if err := json.Unmarshal(msg.Data, snap); err != nil {
				s.fail(&live.ParseError{Err: err})
				cancel()
				return
			}
			select {
			case s.snaps <- snap:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return // closed by the consumer
		}
		if err == nil {
			err = &live.StreamError{Err: errors.New("stream ended")}
		} else {
			err = &live.StreamError{Err: err}
		}
		s.fail(err)
	}()

	return s, nil
}

type sseStream struct {
	snaps  chan *live.Snapshot
	fails  chan error
	cancel context.CancelFunc
}

func (s *sseStream) Snapshots() <-chan *live.Snapshot { return s.snaps }
func (s *sseStream) Failures() <-chan error           { return s.fails }
func (s *sseStream) Close()                           { s.cancel() }

// fail delivers at most one terminal error.
func (s *sseStream) fail(err error) {
	select {
	case s.fails <- err:
	default:
	}
}
