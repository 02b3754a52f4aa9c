package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/session"
	"github.com/matheus3301/wppgw/internal/status"
	intsync "github.com/matheus3301/wppgw/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name that tracks the WhatsApp
// connection; the empty service name reports daemon liveness.
const HealthService = "wppgw.Session"

// HealthServer exposes grpc.health.v1 on the session's Unix socket so local
// tools can tell whether a daemon owns the session.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewHealthServer binds the session socket.
func NewHealthServer(p Params, logger *zap.Logger) (*HealthServer, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists; the session lock guarantees no live owner.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves health checks in the background.
func (s *HealthServer) Start() error {
	s.logger.Info("health server starting", zap.String("socket", s.socketPath))
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			s.logger.Error("health server error", zap.Error(err))
		}
	}()
	return nil
}

// SetConnected flips the session service between SERVING and NOT_SERVING.
func (s *HealthServer) SetConnected(connected bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, st)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *HealthServer) Stop() {
	s.logger.Info("health server stopping")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// watchStatus mirrors tracker transitions from ch into the health service
// and records when the session last became connected.
func watchStatus(ctx context.Context, ch <-chan bus.Event, hs *HealthServer, rec *intsync.Reconciler, logger *zap.Logger) {
	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				continue
			}
			logger.Info("session status changed",
				zap.String("from", string(change.From)), zap.String("to", string(change.To)))
			connected := change.To == status.Connected
			hs.SetConnected(connected)
			if connected {
				if err := rec.UpdateCheckpoint(ctx, intsync.CheckpointLastConnected, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
					logger.Warn("failed to record connection checkpoint", zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchActivity logs send outcomes and history sync progress published by
// the outbox and the sync engine.
func watchActivity(ctx context.Context, ch <-chan bus.Event, logger *zap.Logger) {
	for {
		select {
		case evt := <-ch:
			logActivity(evt, logger)
		case <-ctx.Done():
			return
		}
	}
}

func logActivity(evt bus.Event, logger *zap.Logger) {
	switch evt.Kind {
	case bus.KindMessageSendFailed:
		p, _ := evt.Payload.(map[string]string)
		logger.Warn("send failed",
			zap.String("client_msg_id", p["client_msg_id"]),
			zap.String("chat_jid", p["chat_jid"]),
			zap.String("error", p["error"]))
	case bus.KindMessageSendAck:
		p, _ := evt.Payload.(map[string]string)
		logger.Debug("send acknowledged",
			zap.String("client_msg_id", p["client_msg_id"]),
			zap.String("server_msg_id", p["server_msg_id"]))
	case bus.KindMessageUpserted:
		p, _ := evt.Payload.(map[string]string)
		logger.Debug("message mirrored", zap.String("chat_jid", p["chat_jid"]), zap.String("msg_id", p["msg_id"]))
	case bus.KindSyncHistoryBatch:
		p, _ := evt.Payload.(map[string]int)
		logger.Info("history batch ingested",
			zap.Int("chats", p["chats_count"]),
			zap.Int("messages", p["messages_count"]),
			zap.Int("progress", p["progress"]))
	}
}
