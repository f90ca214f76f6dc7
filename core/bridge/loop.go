// Package bridge owns the polling cadence, the last-known-state cache and
// the command dispatch path between the vehicle API and the message bus.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkarlsen/tesla2mqtt/core/logger"
	"github.com/mkarlsen/tesla2mqtt/core/metrics"
	"github.com/mkarlsen/tesla2mqtt/core/model"
	"github.com/mkarlsen/tesla2mqtt/core/topics"
	"github.com/mkarlsen/tesla2mqtt/core/vehicle"
	"github.com/mkarlsen/tesla2mqtt/internal/cmdqueue"
)

// Bus is the outbound side of the broker capability. Connection handling
// lives behind the implementation.
type Bus interface {
	Publish(topic string, payload []byte, retain bool) error
}

// Loop polls the vehicle, publishes field-level diffs and executes inbound
// commands. A single goroutine runs both activities, so the cached state has
// exactly one writer.
type Loop struct {
	source vehicle.Source
	mapper *topics.Mapper
	bus    Bus
	timing Timing
	sink   metrics.Sink
	log    logger.Logger
	cmds   *cmdqueue.Queue[model.CommandRequest]

	mu       sync.Mutex
	prev     *model.VehicleState
	lastPoll time.Time
	online   *bool

	// loop-goroutine only
	failures int
	interval time.Duration
}

// New creates a Loop. A nil sink falls back to metrics.NopSink.
func New(source vehicle.Source, mapper *topics.Mapper, bus Bus, timing Timing, sink metrics.Sink, log logger.Logger) *Loop {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Loop{
		source: source,
		mapper: mapper,
		bus:    bus,
		timing: timing,
		sink:   sink,
		log:    log,
		cmds:   cmdqueue.New[model.CommandRequest](16),
	}
}

// Run polls until ctx is cancelled or the credential is rejected. The first
// poll happens immediately. A non-nil return means the failure is fatal and
// the process should exit loudly.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-l.cmds.Ch():
			if !ok {
				return nil
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			if err := l.execute(ctx, req); err != nil {
				l.setStatus(false)
				return err
			}
			// Poll right away so the command's effect is published.
			next, err := l.poll(ctx, true)
			if err != nil {
				return err
			}
			timer.Reset(next)
		case <-timer.C:
			next, err := l.poll(ctx, false)
			if err != nil {
				return err
			}
			timer.Reset(next)
		}
	}
}

// HandleMessage is the subscription callback for the command filter. It
// validates the message and queues valid requests for the loop goroutine.
// Invalid requests are rejected here, without contacting the vehicle.
func (l *Loop) HandleMessage(topic string, payload []byte) {
	req, perr := l.mapper.FromMessage(topic, payload)
	if perr != nil {
		l.log.Warnf("rejected message on %s: %s", topic, perr.Reason)
		if perr.Command != "" {
			l.publishResult(perr.Command, perr)
			l.sink.RecordCommand(perr.Command, false)
		}
		return
	}
	l.log.Debugf("queued command %s", req)
	if !l.cmds.TryPush(req) {
		l.log.Errorf("command queue full, dropping %s", req)
		l.publishResult(req.Name, errors.New("command queue full"))
		l.sink.RecordCommand(req.Name, false)
	}
}

// State returns the last known vehicle state, the time it was fetched and
// whether a poll has succeeded yet.
func (l *Loop) State() (model.VehicleState, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.prev == nil {
		return model.VehicleState{}, time.Time{}, false
	}
	return *l.prev, l.lastPoll, true
}

// Close stops accepting commands. Pending ones are still drained by Run.
func (l *Loop) Close() { l.cmds.Close() }

// poll fetches the state once, publishes the diff and returns the delay
// before the next poll. The returned error is fatal.
func (l *Loop) poll(ctx context.Context, hadCommand bool) (time.Duration, error) {
	start := time.Now()
	st, err := l.source.FetchState(ctx)
	dur := time.Since(start)
	if err != nil {
		l.sink.RecordPoll(false, dur)
		l.setStatus(false)
		if errors.Is(err, vehicle.ErrUnauthorized) {
			l.log.Errorf("credential rejected, polling stopped: %v", err)
			return 0, fmt.Errorf("fetch state: %w", err)
		}
		l.failures++
		next := FailureBackoff(l.failures, l.timing)
		l.sink.RecordInterval(next)
		l.log.Warnf("poll failed (%d consecutive): %v, next attempt in %s", l.failures, err, next)
		return next, nil
	}
	l.sink.RecordPoll(true, dur)
	l.failures = 0

	st = st.Normalized()
	l.mu.Lock()
	prevCopy := l.prev
	l.prev = &st
	l.lastPoll = time.Now()
	l.mu.Unlock()

	msgs := l.mapper.ToMessages(st, prevCopy)
	for _, m := range msgs {
		if err := l.bus.Publish(m.Topic, []byte(m.Payload), true); err != nil {
			l.log.Errorf("publish %s: %v", m.Topic, err)
		}
	}
	l.setStatus(true)
	if err := l.sink.RecordState(st); err != nil {
		l.log.Warnf("record state: %v", err)
	}

	l.interval = NextInterval(st, hadCommand, l.interval, l.timing)
	l.sink.RecordInterval(l.interval)
	l.log.Debugf("published %d changed fields, next poll in %s", len(msgs), l.interval)
	return l.interval, nil
}

// execute runs one command with bounded retries on transient failures. The
// returned error is fatal; Rejected and parse failures are reported on the
// result topic and swallowed.
func (l *Loop) execute(ctx context.Context, req model.CommandRequest) error {
	attempts := l.timing.CommandAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = l.source.SendCommand(ctx, req)
		if err == nil {
			break
		}
		if !vehicle.Transient(err) || attempt == attempts {
			break
		}
		if errors.Is(err, vehicle.ErrAsleep) {
			if werr := l.source.Wake(ctx); werr != nil {
				l.log.Warnf("wake request failed: %v", werr)
			}
		}
		delay := l.timing.CommandRetryDelay * time.Duration(attempt)
		l.log.Warnf("command %s attempt %d failed: %v, retrying in %s", req, attempt, err, delay)
		if !sleep(ctx, delay) {
			err = ctx.Err()
			break
		}
	}
	if err != nil {
		l.log.Errorf("command %s failed: %v", req, err)
	} else {
		l.log.Infof("command %s executed", req)
	}
	l.publishResult(req.Name, err)
	l.sink.RecordCommand(req.Name, err == nil)
	if errors.Is(err, vehicle.ErrUnauthorized) {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// commandResult is the payload published on <base>/<command>/result.
type commandResult struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (l *Loop) publishResult(name string, cmdErr error) {
	res := commandResult{ID: uuid.NewString(), Command: name, Success: cmdErr == nil}
	if cmdErr != nil {
		res.Error = cmdErr.Error()
	}
	payload, _ := json.Marshal(res)
	if err := l.bus.Publish(l.mapper.ResultTopic(name), payload, false); err != nil {
		l.log.Errorf("publish result for %s: %v", name, err)
	}
}

// setStatus publishes the liveness topic on transitions only. The retained
// flag keeps the last value visible to new subscribers.
func (l *Loop) setStatus(ok bool) {
	l.mu.Lock()
	changed := l.online == nil || *l.online != ok
	l.online = &ok
	l.mu.Unlock()
	if !changed {
		return
	}
	payload := topics.StatusOffline
	if ok {
		payload = topics.StatusOnline
	}
	if err := l.bus.Publish(l.mapper.StatusTopic(), []byte(payload), true); err != nil {
		l.log.Errorf("publish status: %v", err)
	}
}

// sleep waits for d or until ctx is cancelled, reporting true if the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
