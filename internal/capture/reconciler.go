package capture

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Schedule controls how long a reconciler waits for a delivery. Offsets are
// measured from the start of Run.
type Schedule struct {
	Polls           []time.Duration
	SharedImageWait time.Duration
	Timeout         time.Duration
}

func DefaultSchedule() Schedule {
	return Schedule{
		Polls: []time.Duration{
			300 * time.Millisecond,
			600 * time.Millisecond,
			1000 * time.Millisecond,
			1500 * time.Millisecond,
		},
		SharedImageWait: 1000 * time.Millisecond,
		Timeout:         3000 * time.Millisecond,
	}
}

// Reconciler resolves racing channels into exactly one session outcome
type Reconciler struct {
	channels []Channel
	schedule Schedule
}

// NewReconciler polls channels in the order given
func NewReconciler(schedule Schedule, channels ...Channel) *Reconciler {
	return &Reconciler{channels: channels, schedule: schedule}
}

// Run blocks until a channel delivers, the timeout passes or ctx is
// cancelled. Every channel is empty when Run returns.
func (r *Reconciler) Run(ctx context.Context) *Session {
	start := time.Now()
	if ctx.Err() != nil {
		return r.cancel()
	}

	deadline := time.NewTimer(time.Until(start.Add(r.schedule.Timeout)))
	defer deadline.Stop()

	wake := make(chan struct{}, 1)
	watchCtx, stopWatching := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(watchCtx)
	var releases []func()
	for _, ch := range r.channels {
		n, ok := ch.(Notifier)
		if !ok {
			continue
		}
		signal, release := n.Notify()
		releases = append(releases, release)
		g.Go(func() error {
			forward(gctx, signal, wake)
			return nil
		})
	}
	defer func() {
		stopWatching()
		_ = g.Wait()
		for _, release := range releases {
			release()
		}
	}()

	if s, done := r.poll(ctx); done {
		return s
	}

	tick := time.NewTimer(time.Hour)
	tick.Stop()
	defer tick.Stop()
	var tickC <-chan time.Time
	next := 0
	arm := func() {
		tickC = nil
		if next < len(r.schedule.Polls) {
			tick.Reset(time.Until(start.Add(r.schedule.Polls[next])))
			tickC = tick.C
			next++
		}
	}
	arm()

	for {
		select {
		case <-ctx.Done():
			return r.cancel()
		case <-deadline.C:
			if s, done := r.poll(ctx); done {
				return s
			}
			r.clearAll()
			slog.Debug("capture timed out", "elapsed", time.Since(start))
			return newSession(StateTimedOut)
		case <-tickC:
			if s, done := r.poll(ctx); done {
				return s
			}
			arm()
		case <-wake:
			if s, done := r.poll(ctx); done {
				return s
			}
		}
	}
}

func forward(ctx context.Context, from <-chan struct{}, to chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-from:
			select {
			case to <- struct{}{}:
			default:
			}
		}
	}
}

// poll checks channels in priority order. done is false when nothing was
// delivered.
func (r *Reconciler) poll(ctx context.Context) (s *Session, done bool) {
	for _, ch := range r.channels {
		d, ok, err := ch.TryReceive()
		if err != nil {
			r.clearAll()
			slog.Error("reading capture channel", "channel", ch.Name(), "error", err)
			return errorSession(ch.Name(), "capture channel unavailable"), true
		}
		if !ok {
			continue
		}

		r.clearAll()
		if d.Channel == SharedImage {
			return r.awaitSharedImage(ctx, d), true
		}
		return resolve(d), true
	}
	return nil, false
}

// awaitSharedImage gives upstream OCR time to finish on a shared screenshot
// and then checks the OCR slot once. The hard timeout does not apply.
func (r *Reconciler) awaitSharedImage(ctx context.Context, d Delivery) *Session {
	if _, err := DecodeImageRef(d.Payload); err != nil {
		slog.Warn("malformed shared image", "error", err)
		return errorSession(SharedImage, "malformed shared image")
	}

	ocr := r.channel(OCRResult)
	if ocr == nil {
		return errorSession(SharedImage, "shared image could not be processed")
	}

	wait := time.NewTimer(r.schedule.SharedImageWait)
	defer wait.Stop()
	select {
	case <-ctx.Done():
		return r.cancel()
	case <-wait.C:
	}

	got, ok, err := ocr.TryReceive()
	r.clearAll()
	if err != nil {
		slog.Error("reading capture channel", "channel", OCRResult, "error", err)
		return errorSession(OCRResult, "capture channel unavailable")
	}
	if !ok {
		return errorSession(SharedImage, "shared image could not be processed")
	}
	return resolve(got)
}

func resolve(d Delivery) *Session {
	env, err := DecodeEnvelope(d.Payload)
	if err != nil {
		slog.Warn("malformed capture payload", "channel", d.Channel, "error", err)
		return errorSession(d.Channel, "malformed capture payload")
	}
	return sessionFromEnvelope(d.Channel, env)
}

func (r *Reconciler) channel(name ChannelName) Channel {
	for _, ch := range r.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

func (r *Reconciler) cancel() *Session {
	r.clearAll()
	return newSession(StateCancelled)
}

func (r *Reconciler) clearAll() {
	for _, ch := range r.channels {
		if err := ch.Clear(); err != nil {
			slog.Warn("clearing capture channel", "channel", ch.Name(), "error", err)
		}
	}
}
