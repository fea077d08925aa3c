package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/server/session"
	"github.com/jackadi-io/hive/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
)

// teamServer is the gRPC endpoint drones open their session on.
type teamServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	addr       string
}

func (s *teamServer) Serve() error {
	if s.grpcServer == nil {
		return errors.New("grpc server is nil")
	}

	slog.Info("starting gRPC server")
	slog.Info("listening", "socket", s.addr)
	return s.grpcServer.Serve(s.listener)
}

func (s *teamServer) Close() {
	if s.listener != nil {
		_ = s.listener.Close()
	}

	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
}

func grpcServerOptions(cfg config.ServerMTLSConfig) ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption
	if cfg.Enabled {
		certs, ca, err := config.GetMTLSCertificate(cfg.Cert, cfg.Key, cfg.DroneCA)
		if err != nil {
			return nil, err
		}
		tlsCfg := &tls.Config{
			MinVersion:   tls.VersionTLS12,
			ClientAuth:   tls.RequireAndVerifyClientCert,
			Certificates: certs,
			ClientCAs:    ca,
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	} else {
		slog.Warn("mTLS is disabled, connections to drones are unsafe")
	}

	opts = append(opts,
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             config.KeepaliveMinTime, // drones pinging more often are disconnected
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    config.KeepaliveTime,
			Timeout: config.KeepaliveTimeout,
		}),
		grpc.MaxRecvMsgSize(config.MaxMessageSize),
		grpc.MaxSendMsgSize(config.MaxMessageSize),
	)
	return opts, nil
}

func newTeamServer(cfg *config.ServerConfig, sessions *session.Server) (*teamServer, error) {
	opts, err := grpcServerOptions(cfg.MTLS)
	if err != nil {
		return nil, err
	}

	target := net.JoinHostPort(cfg.ListenAddress, cfg.ListenPort)
	lis, err := net.Listen("tcp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to start TCP listener: %w", err)
	}

	grpcServer := grpc.NewServer(opts...)
	transport.RegisterSessionServer(grpcServer, sessions)

	return &teamServer{
		grpcServer: grpcServer,
		listener:   lis,
		addr:       target,
	}, nil
}
