// Package drone keeps a session with the team server and runs the tasks it receives.
package drone

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/drone/executor"
	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/jackadi-io/hive/internal/transport"
)

// Config holds the configuration for creating a new Drone.
type Config struct {
	DroneID            task.DroneID
	Hostname           string
	ServerAddress      string
	ServerPort         string
	MTLS               config.MTLSConfig
	ReconnectDelay     time.Duration
	CheckInInterval    time.Duration
	MaxConcurrentTasks int
}

type Drone struct {
	config   Config
	codec    *frame.Codec
	conn     *grpc.ClientConn
	client   transport.SessionClient
	uplink   *uplink
	executor *executor.Executor

	// tasks outlive sessions: they are only cancelled by the team server or on shutdown
	tasksCtx    context.Context
	cancelTasks context.CancelFunc
	slots       chan struct{}
	wg          sync.WaitGroup

	mu       sync.Mutex
	running  map[task.ID]context.CancelFunc
	finished *recentTasks
}

func New(cfg Config, codec *frame.Codec) *Drone {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = config.DefaultMaxConcurrentTasks
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = config.DefaultReconnectDelay
	}
	if cfg.CheckInInterval <= 0 {
		cfg.CheckInInterval = config.DefaultCheckInInterval
	}

	up := newUplink(codec)
	ctx, cancel := context.WithCancel(context.Background())
	return &Drone{
		config:      cfg,
		codec:       codec,
		uplink:      up,
		executor:    executor.New(up, nil),
		tasksCtx:    ctx,
		cancelTasks: cancel,
		slots:       make(chan struct{}, cfg.MaxConcurrentTasks),
		running:     make(map[task.ID]context.CancelFunc),
		finished:    newRecentTasks(config.FinishedTaskMemory),
	}
}

// Dial prepares the connection to the team server. The connection itself is established lazily.
func (d *Drone) Dial() error {
	host := net.JoinHostPort(d.config.ServerAddress, d.config.ServerPort)
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                config.ClientKeepaliveTime,
			Timeout:             config.ClientKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(config.MaxMessageSize),
		),
	}

	if d.config.MTLS.Enabled {
		certs, ca, err := config.GetMTLSCertificate(d.config.MTLS.Cert, d.config.MTLS.Key, d.config.MTLS.ServerCA)
		if err != nil {
			return err
		}
		tlsCfg := &tls.Config{
			MinVersion:   tls.VersionTLS12,
			ServerName:   d.config.ServerAddress,
			Certificates: certs,
			RootCAs:      ca,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		slog.Warn("unsecured connection with the team server, you should enable mTLS")
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(host, opts...)
	if err != nil {
		return err
	}
	d.conn = conn
	d.client = transport.NewSessionClient(conn)
	return nil
}

func (d *Drone) Close() error {
	if d.conn == nil {
		return errors.New("trying to close a nil connection")
	}
	return d.conn.Close()
}

// Run keeps a session with the team server until ctx is cancelled.
//
// On shutdown, running tasks are cancelled first and given up to
// GracefulShutdownTimeout to report their end while the session is still open.
func (d *Drone) Run(ctx context.Context) error {
	if d.client == nil {
		return errors.New("drone is not dialed")
	}

	sessionCtx, stopSession := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSession()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.keepSession(sessionCtx)
	}()

	<-ctx.Done()
	slog.Info("stopping running tasks")
	d.stopTasks(config.GracefulShutdownTimeout)
	stopSession()
	<-done
	return nil
}

func (d *Drone) keepSession(ctx context.Context) {
	for {
		slog.Debug("connecting to the team server", "address", d.config.ServerAddress, "port", d.config.ServerPort)
		err := d.Serve(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("connection to the team server failed", "error", err, "retry_in", d.config.ReconnectDelay)
		} else {
			slog.Info("session closed by the team server", "retry_in", d.config.ReconnectDelay)
		}

		select {
		case <-time.After(d.config.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// Serve runs one session: it reports pending frames, checks in periodically
// and handles the frames sent by the team server until the stream ends.
func (d *Drone) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(transport.OutgoingContext(ctx, d.config.DroneID, d.config.Hostname))
	defer cancel()

	stream, err := d.client.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	sender := transport.NewSafeSender(stream)
	if err := d.checkIn(sender); err != nil {
		return fmt.Errorf("failed to check in: %w", err)
	}
	if err := d.uplink.attach(sender); err != nil {
		return fmt.Errorf("failed to flush frame backlog: %w", err)
	}
	defer d.uplink.detach(sender)
	slog.Info("session established", "drone", d.config.DroneID)

	go d.checkInLoop(ctx, sender)

	for {
		f, err := transport.RecvFrame(stream)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, transport.ErrMalformedFrame):
			slog.Warn("malformed frame dropped", "error", err)
			continue
		case status.Code(err) == codes.Canceled && ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}
		d.handleFrame(f)
	}
}

func (d *Drone) checkInLoop(ctx context.Context, sender *transport.SafeSender) {
	tick := time.NewTicker(d.config.CheckInInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := d.checkIn(sender); err != nil {
				slog.Debug("check-in failed", "error", err)
				return
			}
		}
	}
}

func (d *Drone) checkIn(sender *transport.SafeSender) error {
	f, err := d.codec.EncodeValue(frame.CheckIn, task.CheckIn{Hostname: d.config.Hostname, Running: d.Running()})
	if err != nil {
		return err
	}
	return sender.SendFrame(f)
}
