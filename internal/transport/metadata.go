package transport

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/task"
)

// OutgoingContext attaches the drone identity to the session stream.
func OutgoingContext(ctx context.Context, droneID task.DroneID, hostname string) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		config.DroneIDMetadataKey, string(droneID),
		config.HostnameMetadataKey, hostname,
	)
}

// DroneFromContext returns the drone identity sent with the stream. The hostname is optional.
func DroneFromContext(ctx context.Context) (task.DroneID, string, error) {
	id, err := GetMetadataUniqueKey(ctx, config.DroneIDMetadataKey)
	if err != nil {
		return "", "", err
	}
	if id == "" {
		return "", "", status.Error(codes.InvalidArgument, "empty drone id")
	}
	hostname, _ := GetMetadataUniqueKey(ctx, config.HostnameMetadataKey)
	return task.DroneID(id), hostname, nil
}

func GetMetadataUniqueKey(ctx context.Context, key string) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Errorf(codes.DataLoss, "failed to get metadata")
	}
	if v, ok := md[key]; ok {
		if len(v) != 1 {
			return "", status.Errorf(codes.Unknown, "more than one value for metadata key")
		}
		return v[0], nil
	}

	return "", status.Error(codes.DataLoss, "missing key")
}
