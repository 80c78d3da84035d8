package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/benmeehan/location-agent/pkg/file"
)

// Identity holds the device's unique identifier and other metadata.
type Identity struct {
	ID       string          `json:"device_id,omitempty"`
	Name     string          `json:"device_name,omitempty"`
	OrgID    string          `json:"org_id,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// DeviceInfoInterface exposes the identity the agent publishes under.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	GetDeviceID() string
	GetDeviceIdentity() *Identity
}

// DeviceInfo loads the device identity from a JSON file.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
	hostname       func() (string, error)
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
		hostname:       os.Hostname,
	}
}

// LoadDeviceInfo reads the identity file. A missing file or a file without device_id
// falls back to the hostname so every topic still carries a stable identifier.
func (d *DeviceInfo) LoadDeviceInfo() error {
	d.Identity = Identity{}
	err := d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if d.Identity.ID == "" {
		host, err := d.hostname()
		if err != nil {
			return fmt.Errorf("no device_id in %s and hostname unavailable: %w", d.DeviceInfoFile, err)
		}
		d.Identity.ID = host
	}
	return nil
}

// GetDeviceIdentity returns the current device Identity.
func (d *DeviceInfo) GetDeviceIdentity() *Identity {
	return &d.Identity
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.ID
}
