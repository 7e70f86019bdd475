package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"scribe/internal/api"
	"scribe/internal/daemon"
	"scribe/internal/logging"
	"scribe/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Scribe", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun scribe stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.State = status.State
	resp.Processing = status.Processing
	resp.QueueDepth = status.QueueDepth
	resp.TrackedSessions = status.TrackedSessions
	resp.QueueStats = status.QueueStats
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockFilePath
	resp.PID = status.PID
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	item, err := s.daemon.Enqueue(s.ctx, req.SessionID, req.Project, req.Payload)
	if err != nil {
		return err
	}
	resp.Item = api.FromItem(item)
	s.log().Info("work submitted via IPC",
		logging.String(logging.FieldEventType, "work_submitted"),
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.String(logging.FieldItemID, item.ID))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]store.ItemStatus, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		parsed, ok := store.ParseItemStatus(value)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.daemon.QueueList(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]WorkItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.Items = append(resp.Items, api.FromItem(item))
	}
	return nil
}

func (s *service) SessionList(_ SessionListRequest, resp *SessionListResponse) error {
	records, err := s.daemon.Sessions(s.ctx)
	if err != nil {
		return err
	}
	resp.Sessions = make([]SessionRecord, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		resp.Sessions = append(resp.Sessions, api.FromSessionRecord(record))
	}
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Completed = health.Completed
	resp.Failed = health.Failed
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalItems = health.TotalItems
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) Recover(req RecoverRequest, resp *RecoverResponse) error {
	s.log().Debug("recovery sweep requested", logging.Int("session_limit", req.SessionLimit))
	report, err := s.daemon.RecoverNow(s.ctx, req.SessionLimit)
	if err != nil {
		return err
	}
	resp.ItemsReset = report.ItemsReset
	resp.SessionsExpired = report.SessionsExpired
	resp.TotalPendingSessions = report.TotalPendingSessions
	resp.SessionsStarted = report.SessionsStarted
	resp.SessionsSkipped = report.SessionsSkipped
	resp.StartedIDs = append(resp.StartedIDs, report.StartedIDs...)
	resp.SkippedIDs = append(resp.SkippedIDs, report.SkippedIDs...)
	s.log().Info("recovery sweep finished via IPC",
		logging.String(logging.FieldEventType, "recovery_sweep"),
		logging.Int64("items_reset", report.ItemsReset),
		logging.Int("sessions_started", report.SessionsStarted))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Debug("daemon shutdown requested")
	if err := s.daemon.Shutdown(context.Background()); err != nil {
		return err
	}
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		resp.Sent = false
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "test notification sent"
	return nil
}
