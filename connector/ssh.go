package connector

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/hjbyt/adb/common"
	"github.com/hjbyt/adb/file"
	"github.com/hjbyt/adb/logger"
	"github.com/hjbyt/adb/shell"
)

// SSHConfig describes how to reach a device running an SSH server.
type SSHConfig struct {
	Username    string
	Password    string
	Address     string
	Port        int
	PrivateKey  string
	KeyFile     string
	AgentSocket string
	Timeout     time.Duration
	Bastion     string
	BastionPort int
	BastionUser string
}

const socketEnvPrefix = "env:"

var _ Device = (*SSH)(nil)
var _ Puller = (*SSH)(nil)

// SSH runs marker scripts over an SSH session and moves files with SFTP.
type SSH struct {
	mu         sync.Mutex
	sftpclient *sftp.Client
	sshclient  *ssh.Client
	config     SSHConfig
	log        *logrus.Entry

	connCtx    context.Context
	connCancel context.CancelFunc

	agentSocketConn net.Conn
}

// NewSSH dials the device, through the bastion when one is configured.
func NewSSH(cfg SSHConfig) (*SSH, error) {
	var err error
	cfg, err = validateConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate ssh connection parameters")
	}

	authMethods := make([]ssh.AuthMethod, 0)
	conn := &SSH{
		config: cfg,
		log:    logger.Log.WithField(common.DeviceName, cfg.Address),
	}

	if len(cfg.Password) > 0 {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}

	if len(cfg.PrivateKey) > 0 {
		signer, parseErr := ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		if parseErr != nil {
			return nil, errors.Wrap(parseErr, "the given SSH key could not be parsed")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(cfg.AgentSocket) > 0 {
		addr := resolveAgentSocket(cfg.AgentSocket)

		var dialErr error
		conn.agentSocketConn, dialErr = net.Dial("unix", addr)
		if dialErr != nil {
			return nil, errors.Wrapf(dialErr, "could not open SSH agent socket %q", addr)
		}

		agentClient := agent.NewClient(conn.agentSocketConn)
		signers, signersErr := agentClient.Signers()
		if signersErr != nil {
			conn.cleanupAgentSocket()
			return nil, errors.Wrap(signersErr, "error when creating signer for SSH agent")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signers...))
	}

	targetHost, targetPort, effectiveUser := cfg.Address, cfg.Port, cfg.Username
	if cfg.Bastion != "" {
		targetHost, targetPort, effectiveUser = cfg.Bastion, cfg.BastionPort, cfg.BastionUser
	}

	endpoint := net.JoinHostPort(targetHost, strconv.Itoa(targetPort))
	client, err := ssh.Dial("tcp", endpoint, &ssh.ClientConfig{
		User:            effectiveUser,
		Timeout:         cfg.Timeout,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		conn.cleanupAgentSocket()
		return nil, errors.Wrapf(err, "could not establish connection to %s", endpoint)
	}

	if cfg.Bastion != "" {
		endpointBehindBastion := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
		connToTarget, dialErr := client.Dial("tcp", endpointBehindBastion)
		if dialErr != nil {
			_ = client.Close()
			conn.cleanupAgentSocket()
			return nil, errors.Wrapf(dialErr, "could not establish connection to target %s via bastion", endpointBehindBastion)
		}

		ncc, chans, reqs, clientConnErr := ssh.NewClientConn(connToTarget, endpointBehindBastion, &ssh.ClientConfig{
			User:            cfg.Username,
			Timeout:         cfg.Timeout,
			Auth:            authMethods,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		})
		if clientConnErr != nil {
			_ = connToTarget.Close()
			_ = client.Close()
			conn.cleanupAgentSocket()
			return nil, errors.Wrapf(clientConnErr, "failed to create new SSH client connection to %s via bastion", endpointBehindBastion)
		}
		client = ssh.NewClient(ncc, chans, reqs)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		conn.cleanupAgentSocket()
		return nil, errors.Wrap(err, "failed to create SFTP client")
	}

	conn.sshclient = client
	conn.sftpclient = sftpClient
	conn.connCtx, conn.connCancel = context.WithCancel(context.Background())
	return conn, nil
}

func resolveAgentSocket(socket string) string {
	if !strings.HasPrefix(socket, socketEnvPrefix) {
		return socket
	}
	envName := strings.TrimPrefix(socket, socketEnvPrefix)
	if envAddr := os.Getenv(envName); len(envAddr) > 0 {
		return envAddr
	}
	logger.Log.Warnf("SSH Agent environment variable %s not found, using original socket string %s", envName, socket)
	return socket
}

func (c *SSH) cleanupAgentSocket() {
	if c.agentSocketConn != nil {
		_ = c.agentSocketConn.Close()
		c.agentSocketConn = nil
	}
}

func validateConfig(cfg SSHConfig) (SSHConfig, error) {
	if len(cfg.Username) == 0 {
		return cfg, errors.New("no username specified for SSH connection")
	}
	if len(cfg.Address) == 0 {
		return cfg, errors.New("no address specified for SSH connection")
	}
	if len(cfg.Password) == 0 && len(cfg.PrivateKey) == 0 && len(cfg.KeyFile) == 0 && len(cfg.AgentSocket) == 0 {
		return cfg, errors.New("must specify at least one of password, private key, keyfile or agent socket")
	}

	if len(cfg.PrivateKey) == 0 && len(cfg.KeyFile) > 0 {
		content, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return cfg, errors.Wrapf(err, "failed to read keyfile %q", cfg.KeyFile)
		}
		cfg.PrivateKey = string(content)
	}

	if cfg.Port <= 0 {
		cfg.Port = common.DefaultSSHPort
	}
	if cfg.Bastion != "" {
		if cfg.BastionPort <= 0 {
			cfg.BastionPort = common.DefaultSSHPort
		}
		if cfg.BastionUser == "" {
			cfg.BastionUser = cfg.Username
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}

// Close releases the SFTP client, the SSH client and the agent socket.
func (c *SSH) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connCancel != nil {
		c.connCancel()
	}

	var result *multierror.Error
	if c.sftpclient != nil {
		if err := c.sftpclient.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "sftp close error"))
		}
		c.sftpclient = nil
	}
	if c.sshclient != nil {
		if err := c.sshclient.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "ssh close error"))
		}
		c.sshclient = nil
	}
	if c.agentSocketConn != nil {
		if err := c.agentSocketConn.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "agent socket close error"))
		}
		c.agentSocketConn = nil
	}
	return result.ErrorOrNil()
}

// newSession opens a session without a PTY: a terminal would rewrite line
// endings and merge the marker stream with echoed input.
func (c *SSH) newSession(ctx context.Context) (*ssh.Session, error) {
	c.mu.Lock()
	client := c.sshclient
	c.mu.Unlock()

	if client == nil {
		return nil, errors.New("ssh connection is closed or not initialized")
	}

	opCtx, opCancel := context.WithCancel(ctx)
	defer opCancel()
	go func() {
		select {
		case <-c.connCtx.Done():
			opCancel()
		case <-opCtx.Done():
		}
	}()

	type result struct {
		sess *ssh.Session
		err  error
	}
	sessionDone := make(chan result, 1)
	go func() {
		s, e := client.NewSession()
		sessionDone <- result{s, e}
	}()

	select {
	case <-opCtx.Done():
		go func() {
			if r := <-sessionDone; r.sess != nil {
				_ = r.sess.Close()
			}
		}()
		return nil, errors.Wrap(opCtx.Err(), "failed to create ssh session (context cancelled)")
	case r := <-sessionDone:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "failed to create ssh session")
		}
		return r.sess, nil
	}
}

// lockedBuffer lets stdout and stderr share one buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// RunRemoteShell runs script in a remote shell and returns stdout and stderr
// interleaved. A non-zero exit of the remote shell is a transport failure.
func (c *SSH) RunRemoteShell(ctx context.Context, script string) ([]byte, error) {
	sess, err := c.newSession(ctx)
	if err != nil {
		return nil, &shell.TransportError{Op: "shell", ExitCode: -1, Err: err}
	}
	defer sess.Close()

	var out lockedBuffer
	sess.Stdout = &out
	sess.Stderr = &out

	if err := sess.Start(script); err != nil {
		return nil, &shell.TransportError{Op: "shell", ExitCode: -1, Err: errors.Wrap(err, "failed to start remote shell")}
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- sess.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGINT)
		select {
		case <-time.After(250 * time.Millisecond):
		case <-waitDone:
		}
		_ = sess.Close()
		return nil, &shell.TransportError{Op: "shell", ExitCode: -1, Output: out.Bytes(),
			Err: errors.Wrap(ctx.Err(), "remote shell cancelled")}

	case err := <-waitDone:
		if err == nil {
			return out.Bytes(), nil
		}
		exitCode := -1
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitStatus()
		}
		return nil, &shell.TransportError{Op: "shell", ExitCode: exitCode, Output: out.Bytes(), Err: err}
	}
}

func (c *SSH) sftpClient() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftpclient == nil {
		return nil, errors.New("sftp client is not initialized or connection is closed")
	}
	return c.sftpclient, nil
}

// CopyToRemote uploads localPath over SFTP and verifies the md5 sum on the
// device when md5sum is available there.
func (c *SSH) CopyToRemote(ctx context.Context, localPath, remotePath string) error {
	if err := c.copyToRemote(ctx, localPath, remotePath); err != nil {
		return &shell.TransportError{Op: "copy", ExitCode: -1, Err: err}
	}
	return nil
}

func (c *SSH) copyToRemote(ctx context.Context, localPath, remotePath string) error {
	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	localMd5, err := file.LocalMd5Sum(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to calculate MD5 for local file %s", localPath)
	}

	srcFile, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open local file %s", localPath)
	}
	defer srcFile.Close()

	srcFi, err := srcFile.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat local file %s", localPath)
	}

	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		c.log.Warnf("Failed to ensure remote directory %s exists: %v", path.Dir(remotePath), err)
	}
	dstFile, err := client.Create(remotePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create remote file %s via sftp", remotePath)
	}
	defer dstFile.Close()

	if err := dstFile.Chmod(srcFi.Mode().Perm()); err != nil {
		c.log.Warnf("Failed to chmod remote file %s: %v", remotePath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.Wrapf(err, "sftp copy from %s to %s failed", localPath, remotePath)
	}
	if err := dstFile.Close(); err != nil {
		return errors.Wrapf(err, "failed to close remote file %s", remotePath)
	}

	remoteMd5, err := c.RunRemoteShell(ctx, "md5sum "+shell.Quote(shell.Arg(remotePath)))
	if err != nil {
		c.log.Warnf("Failed to get remote MD5 after upload for %s: %v. Validation skipped.", remotePath, err)
		return nil
	}
	fields := strings.Fields(string(remoteMd5))
	if len(fields) == 0 || fields[0] != localMd5 {
		return errors.Errorf("MD5 checksum mismatch for %s after upload: local %s != remote %s",
			remotePath, localMd5, strings.TrimSpace(string(remoteMd5)))
	}
	c.log.Debugf("MD5 checksum validated for %s after upload.", remotePath)
	return nil
}

// RemoveRemote deletes remotePath; a missing file is not an error.
func (c *SSH) RemoveRemote(ctx context.Context, remotePath string) error {
	client, err := c.sftpClient()
	if err == nil {
		err = client.Remove(remotePath)
		if err != nil && os.IsNotExist(err) {
			err = nil
		}
	}
	if err != nil {
		return &shell.TransportError{Op: "remove", ExitCode: -1, Err: errors.Wrapf(err, "failed to remove %s", remotePath)}
	}
	return nil
}

// Pull downloads remotePath to localPath over SFTP.
func (c *SSH) Pull(ctx context.Context, remotePath, localPath string) error {
	if err := c.pull(ctx, remotePath, localPath); err != nil {
		return &shell.TransportError{Op: "pull", ExitCode: -1, Err: err}
	}
	return nil
}

func (c *SSH) pull(ctx context.Context, remotePath, localPath string) error {
	client, err := c.sftpClient()
	if err != nil {
		return err
	}
	src, err := client.Open(remotePath)
	if err != nil {
		return errors.Wrapf(err, "sftp: failed to open remote file %s", remotePath)
	}
	defer src.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := file.CreateFileDir(localPath); err != nil {
		return errors.Wrapf(err, "failed to create local directory for %s", localPath)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create local file %s", localPath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, "failed to write content to local file %s", localPath)
	}
	return errors.Wrapf(dst.Close(), "failed to close local file %s", localPath)
}
