package config

import "time"

const (
	// Network.
	DefaultServerAddress  = "127.0.0.1"
	DefaultServerPort     = "50050"
	DefaultAPIAddress     = "127.0.0.1"
	DefaultAPIPort        = "50051"
	HTTPReadHeaderTimeout = 10 * time.Second

	// Metadata keys sent by drones when opening a session.
	DroneIDMetadataKey  = "drone_id"
	HostnameMetadataKey = "hostname"

	// Timing and duration config.
	DefaultReconnectDelay   = 10 * time.Second // The default delay between reconnection attempts to the team server.
	DefaultCheckInInterval  = 30 * time.Second // The default delay between two drone check-ins.
	GracefulShutdownTimeout = 30 * time.Second
	DatabaseGCInterval      = 5 * time.Minute
	ProcessWaitDelay        = 2 * time.Second // Bound on output draining once a process exited or was killed.
	NotifyTimeout           = 5 * time.Second // Upper bound of a single notification delivery.
	SessionDispatchTimeout  = 5 * time.Second // Wait for in-flight frames once a drone stopped sending.

	// gRPC keepalive settings.
	KeepaliveTime          = 5 * time.Second
	KeepaliveTimeout       = 1 * time.Second
	KeepaliveMinTime       = 5 * time.Second
	ClientKeepaliveTime    = 10 * time.Second
	ClientKeepaliveTimeout = 30 * time.Second

	// Task limits.
	DefaultMaxConcurrentTasks = 8
	FinishedTaskMemory        = 1024                               // Finished task IDs a drone remembers to ignore redelivered tasks.
	MaxMessageSize            = 4 << 20                            // gRPC default maximum message size.
	FrameEnvelopeSize         = 16                                 // Room for the protobuf wrapper around a frame.
	MaxFrameSize              = MaxMessageSize - FrameEnvelopeSize // Largest wire frame that fits in one message.

	// File and directory paths.
	DefaultConfigDir   = "/etc/hive"              // Default configuration directory.
	DefaultDatabaseDir = "/var/lib/hive/database" // Default database directory (task records, known drones).
	HTPasswordFile     = "htpasswd"               // Name of the API credentials file in the config directory.

	// Notification relay.
	DefaultKafkaBrokers = "localhost:9092"
	DefaultKafkaTopic   = "hive.tasks"

	// Database settings.
	DBGCThreshold = 0.7 // Threshold for database garbage collection.
)
