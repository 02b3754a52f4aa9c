package wa

import (
	"context"
	"fmt"

	"github.com/matheus3301/wppgw/internal/status"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// TranslateQRItem maps one pairing channel item to a lifecycle event.
// ok is false for items that carry nothing for the reactor.
func TranslateQRItem(item whatsmeow.QRChannelItem) (evt status.Event, ok bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return status.Event{Kind: status.EventQR, Payload: item.Code}, true
	case whatsmeow.QRChannelSuccess.Event:
		return status.Event{Kind: status.EventAuthenticated}, true
	case whatsmeow.QRChannelTimeout.Event:
		return status.Event{Kind: status.EventAuthFailure, Reason: "qr code timed out"}, true
	}
	if item.Error != nil {
		return status.Event{Kind: status.EventAuthFailure, Reason: item.Error.Error()}, true
	}
	if item.Event != "" {
		return status.Event{Kind: status.EventAuthFailure, Reason: item.Event}, true
	}
	return status.Event{}, false
}

// startPairing opens the QR channel, connects, and forwards pairing items
// until the channel closes. Must be called before any Connect.
func (a *Adapter) startPairing(ctx context.Context) error {
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go func() {
		for item := range qrChan {
			evt, ok := TranslateQRItem(item)
			if !ok {
				continue
			}
			if evt.Kind == status.EventQR {
				a.logger.Info("pairing code received")
			} else {
				a.logger.Info("pairing channel event", zap.String("event", item.Event))
			}
			a.handler.emit(evt)
		}
	}()
	return nil
}
