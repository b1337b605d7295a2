// Package identity models a server's self-record: the temp/permanent id,
// serverType, computed soft/hard caps, and the role loaded from the
// ENVIRONMENT file at boot.
package identity

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
)

// ServerType classifies a process by available heap, per spec §4.C:
// MINI at ≤8 GiB max heap, MEGA otherwise.
type ServerType string

const (
	ServerTypeMini ServerType = "MINI"
	ServerTypeMega ServerType = "MEGA"
)

// miniMaxHeapBytes is the MINI/MEGA boundary: exactly 8 GiB is MINI,
// anything above is MEGA.
const miniMaxHeapBytes = 8 * 1024 * 1024 * 1024

// Status is the server lifecycle agent's coarse state for external
// reporting (distinct from the finer-grained agent state machine).
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusReady    Status = "READY"
	StatusStopping Status = "STOPPING"
	StatusOffline  Status = "OFFLINE"
)

// Identity is a server's self-record. A permanent id, once assigned by
// the registry, never changes for the lifetime of the instance.
type Identity struct {
	ServerID     string
	InstanceUUID string
	Family       string
	Role         string
	ServerType   ServerType
	Address      string
	Port         int
	SoftCap      int
	HardCap      int
	Status       Status
}

// DetectServerType inspects the host's total memory via gopsutil and
// classifies it MINI or MEGA against the 8 GiB max-heap boundary. Go
// processes do not expose a configured max-heap the way a JVM -Xmx does,
// so total system memory stands in for it, the same proxy the boot
// sequence would read from a container memory limit.
func DetectServerType() (ServerType, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return "", fmt.Errorf("identity: detect server type: %w", err)
	}
	return classifyByHeapBytes(vm.Total), nil
}

// classifyByHeapBytes applies the MINI/MEGA boundary rule to a raw byte
// count: exactly 8 GiB is MINI, anything above is MEGA.
func classifyByHeapBytes(totalBytes uint64) ServerType {
	if totalBytes <= miniMaxHeapBytes {
		return ServerTypeMini
	}
	return ServerTypeMega
}

// Caps returns the (soft, hard) capacity pair for a ServerType: 10/15 for
// MINI, 60/70 for MEGA.
func Caps(t ServerType) (soft, hard int) {
	if t == ServerTypeMini {
		return 10, 15
	}
	return 60, 70
}

// LoadRole reads the trimmed contents of the ENVIRONMENT file at path.
// A missing or empty file defaults to "game".
func LoadRole(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "game"
	}
	role := strings.TrimSpace(string(data))
	if role == "" {
		return "game"
	}
	return role
}

// NewBootIdentity builds the Identity a lifecycle agent starts with: a
// temporary id, a fresh instance uuid, detected server type and caps, and
// the role read from the ENVIRONMENT file.
func NewBootIdentity(environmentFilePath, family, address string, port int) (Identity, error) {
	serverType, err := DetectServerType()
	if err != nil {
		return Identity{}, err
	}
	soft, hard := Caps(serverType)

	return Identity{
		ServerID:     "temp-" + uuid.NewString()[:8],
		InstanceUUID: uuid.NewString(),
		Family:       family,
		Role:         LoadRole(environmentFilePath),
		ServerType:   serverType,
		Address:      address,
		Port:         port,
		SoftCap:      soft,
		HardCap:      hard,
		Status:       StatusStarting,
	}, nil
}

// MaxCapacity returns the hard cap, the value advertised as maxCapacity
// on registration and heartbeat payloads.
func (id Identity) MaxCapacity() int { return id.HardCap }

// NumCPU is recorded for diagnostics only; it has no bearing on the
// MINI/MEGA classification.
func NumCPU() int { return runtime.NumCPU() }
