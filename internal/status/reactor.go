package status

import (
	"context"

	"go.uber.org/zap"
)

// Encoder renders a raw pairing code into a displayable image string.
type Encoder interface {
	Encode(payload string) (string, error)
}

// Reactor is the single consumer of adapter lifecycle events. It is the only
// writer of the tracker apart from an explicit logout.
type Reactor struct {
	tracker *Tracker
	encoder Encoder
	logger  *zap.Logger

	// OnQR, when set, receives every accepted raw pairing code (terminal rendering).
	OnQR func(raw string)
}

// NewReactor creates a reactor applying events to tracker.
func NewReactor(tracker *Tracker, encoder Encoder, logger *zap.Logger) *Reactor {
	return &Reactor{
		tracker: tracker,
		encoder: encoder,
		logger:  logger,
	}
}

// Run applies events in arrival order until ctx ends or events is closed.
func (r *Reactor) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.Apply(evt)
		case <-ctx.Done():
			return
		}
	}
}

// Apply performs one transition. Not safe for concurrent use; Run serializes calls.
func (r *Reactor) Apply(evt Event) {
	switch evt.Kind {
	case EventLoadingScreen:
		r.logger.Info("loading", zap.Int("percent", evt.Percent), zap.String("text", evt.Text))
	case EventQR:
		r.applyQR(evt.Payload)
	case EventAuthenticated:
		r.logger.Info("authenticated")
		r.tracker.MarkAuthenticated()
	case EventReady:
		info := evt.Client.withDefaults()
		r.tracker.MarkReady(info)
		r.logger.Info("client ready",
			zap.String("name", info.Name),
			zap.String("phone", info.Phone),
			zap.String("platform", info.Platform),
		)
	case EventAuthFailure:
		r.logger.Error("authentication failure", zap.String("reason", evt.Reason))
		r.tracker.MarkAuthFailure()
	case EventDisconnected:
		r.logger.Warn("client disconnected", zap.String("reason", evt.Reason))
		r.tracker.MarkDisconnected()
	case EventRemoteSessionSaved:
		r.logger.Info("remote session saved")
	default:
		r.logger.Warn("unknown session event", zap.String("kind", string(evt.Kind)))
	}
}

func (r *Reactor) applyQR(raw string) {
	encoded, err := r.encoder.Encode(raw)
	if err != nil {
		r.logger.Error("failed to encode QR code", zap.Error(err))
		encoded = ""
	}
	if !r.tracker.SetQR(encoded, raw) {
		r.logger.Warn("ignoring QR code while connected")
		return
	}
	r.logger.Info("QR code received")
	if r.OnQR != nil {
		r.OnQR(raw)
	}
}
