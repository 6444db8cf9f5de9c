package connector

import (
	"context"

	"github.com/hjbyt/adb/shell"
)

// Device is a shell.Transport that holds resources until closed.
type Device interface {
	shell.Transport
	Close() error
}

// Puller copies remote files back to the host.
type Puller interface {
	Pull(ctx context.Context, remotePath, localPath string) error
}

// PowerController waits for and reboots devices.
type PowerController interface {
	WaitForDevice(ctx context.Context) error
	Reboot(ctx context.Context, option string) error
}
