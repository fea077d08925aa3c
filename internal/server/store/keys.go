package store

import (
	"fmt"
	"strings"

	"github.com/jackadi-io/hive/internal/task"
)

const (
	TaskKeyPrefix  = "task"
	DroneKeyPrefix = "drone"
)

type Key struct {
	Prefix string
	ID     string
}

// StringToKey parses a database key string into its prefix and ID components.
func StringToKey(key string) (Key, error) {
	keyParts := strings.Split(key, ":")
	if len(keyParts) != 2 {
		return Key{}, fmt.Errorf("invalid key: %s not in 'prefix:id' format", key)
	}
	return Key{keyParts[0], keyParts[1]}, nil
}

// GenerateTaskKey creates the database key of a task record.
func GenerateTaskKey(id task.ID) []byte {
	return fmt.Appendf(nil, "%s:%s", TaskKeyPrefix, id)
}

// GenerateDroneKey creates the database key of a drone registry entry.
func GenerateDroneKey(id task.DroneID) []byte {
	return fmt.Appendf(nil, "%s:%s", DroneKeyPrefix, id)
}

func prefix(p string) []byte {
	return []byte(p + ":")
}
