package common

import (
	"io/fs"
	"path"
)

const (
	AppName = "adb"
	// RemoteTmpDirBase is writable by the shell user on stock Android devices.
	RemoteTmpDirBase = "/data/local/tmp"
)

// GetRemoteTmpDir returns the default directory for scratch files on the device.
func GetRemoteTmpDir() string {
	return path.Clean(RemoteTmpDirBase)
}

// Log field keys, displayed in this order by the console formatter.
const (
	DeviceName  = "Device"
	BatchName   = "Batch"
	CommandName = "Command"
)

const (
	// FileMode0755 represents rwxr-xr-x
	FileMode0755 fs.FileMode = 0755
	// FileMode0644 represents rw-r--r--
	FileMode0644 fs.FileMode = 0644
)

const (
	DefaultSSHPort       = 22
	DefaultBridgeCommand = "adb"
	DefaultLocalShell    = "/bin/bash"
)

// Transport kinds accepted in device configuration.
const (
	TransportBridge = "adb"
	TransportSSH    = "ssh"
	TransportLocal  = "local"
)
