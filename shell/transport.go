package shell

import "context"

// Transport is the channel a Session drives. Implementations live in the
// connector package.
type Transport interface {
	// RunRemoteShell runs script as the sole argument of one remote shell
	// invocation and returns its combined stdout and stderr. It fails only
	// when the channel fails, never because of the script's own status.
	RunRemoteShell(ctx context.Context, script string) ([]byte, error)
	// CopyToRemote copies a local file to an absolute remote path.
	CopyToRemote(ctx context.Context, localPath, remotePath string) error
	// RemoveRemote deletes a remote file.
	RemoveRemote(ctx context.Context, remotePath string) error
}
