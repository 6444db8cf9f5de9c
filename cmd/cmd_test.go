package cmd

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjbyt/adb/config"
	"github.com/hjbyt/adb/connector"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, o *rootOptions, args ...string) result {
	t.Helper()
	if o == nil {
		o = &rootOptions{dial: connector.Dial}
	}
	root := newRootCmd(o)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(bytes.NewReader(nil))
	code := run(context.Background(), root, args, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// localArgs selects the local transport with a private scratch directory.
func localArgs(t *testing.T, args ...string) []string {
	t.Helper()
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	return append([]string{"--transport", "local", "--local-shell", bash, "--remote-tmp", t.TempDir()}, args...)
}

func TestShellCmd(t *testing.T) {
	res := execute(t, nil, localArgs(t, "shell", "echo", "hello | tr a-z A-Z")...)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "HELLO\n", res.stdout)

	res = execute(t, nil, localArgs(t, "shell", "echo partial; exit 3")...)
	assert.Equal(t, 3, res.code)
	assert.Equal(t, "partial\n", res.stdout)
}

func TestBatchCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		code     int
		expected string
	}{
		{
			name:     "all succeed",
			args:     []string{"batch", "echo a", "echo b"},
			code:     0,
			expected: "=== [0] echo a (status 0)\na\n=== [1] echo b (status 0)\nb\n",
		},
		{
			name:     "stops at first failure",
			args:     []string{"batch", "echo a", "false", "echo c"},
			code:     1,
			expected: "=== [0] echo a (status 0)\na\n=== [1] false (status 1)\n=== 1 command(s) not run\n",
		},
		{
			name: "continue runs everything",
			args: []string{"batch", "--continue", "echo a", "false", "printf c"},
			code: 1,
			expected: "=== [0] echo a (status 0)\na\n=== [1] false (status 1)\n" +
				"=== [2] printf c (status 0)\nc\n",
		},
		{
			name:     "quiet prints outputs only",
			args:     []string{"batch", "-q", "echo a", "printf b"},
			code:     0,
			expected: "a\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, nil, localArgs(t, tt.args...)...)
			assert.Equal(t, tt.code, res.code, res.stderr)
			assert.Equal(t, tt.expected, res.stdout)
		})
	}
}

func TestBatchCmd_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "commands.txt")
	require.NoError(t, os.WriteFile(file, []byte("# setup\necho one\n\n  echo two  \n"), 0644))

	res := execute(t, nil, localArgs(t, "batch", "-q", "--file", file)...)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "one\ntwo\n", res.stdout)

	res = execute(t, nil, localArgs(t, "batch", "--file", file, "echo extra")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "both as arguments and with --file")

	res = execute(t, nil, localArgs(t, "batch")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no commands given")
}

func TestScriptCmd(t *testing.T) {
	script := filepath.Join(t.TempDir(), "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"args: $*\"\nexit 2\n"), 0644))

	res := execute(t, nil, localArgs(t, "script", script, "a", "b")...)
	assert.Equal(t, 2, res.code)
	assert.Equal(t, "args: a b\n", res.stdout)
	assert.Contains(t, res.stderr, "status 2")
}

func TestPushAndPullCmd(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	remote := filepath.Join(t.TempDir(), "remote.txt")
	back := filepath.Join(t.TempDir(), "back.txt")

	res := execute(t, nil, localArgs(t, "push", src, remote)...)
	require.Equal(t, 0, res.code, res.stderr)
	res = execute(t, nil, localArgs(t, "pull", remote, back)...)
	require.Equal(t, 0, res.code, res.stderr)

	content, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	res = execute(t, nil, localArgs(t, "push", filepath.Join(t.TempDir(), "missing"), remote)...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "failed to stat")
}

type fakeDevice struct {
	calls []string
}

func (f *fakeDevice) RunRemoteShell(ctx context.Context, script string) ([]byte, error) {
	f.calls = append(f.calls, "shell")
	return nil, errors.New("no shell on this device")
}

func (f *fakeDevice) CopyToRemote(ctx context.Context, localPath, remotePath string) error {
	f.calls = append(f.calls, "copy "+localPath+" "+remotePath)
	return nil
}

func (f *fakeDevice) RemoveRemote(ctx context.Context, remotePath string) error {
	f.calls = append(f.calls, "remove "+remotePath)
	return nil
}

func (f *fakeDevice) WaitForDevice(ctx context.Context) error {
	f.calls = append(f.calls, "wait")
	return nil
}

func (f *fakeDevice) Reboot(ctx context.Context, option string) error {
	f.calls = append(f.calls, "reboot "+option)
	return nil
}

func (f *fakeDevice) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

func TestDeviceControlCmds(t *testing.T) {
	dev := &fakeDevice{}
	var dialed *config.DeviceConfig
	o := &rootOptions{dial: func(cfg *config.DeviceConfig) (connector.Device, error) {
		dialed = cfg
		return dev, nil
	}}

	res := execute(t, o, "--serial", "emulator-5554", "wait")
	require.Equal(t, 0, res.code, res.stderr)
	require.NotNil(t, dialed)
	assert.Equal(t, "emulator-5554", dialed.Spec.Bridge.Serial)

	res = execute(t, o, "reboot", "recovery")
	require.Equal(t, 0, res.code, res.stderr)

	res = execute(t, o, "pull", "/sdcard/a", filepath.Join(t.TempDir(), "a"))
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "cannot pull files")

	res = execute(t, o, "shell", "id")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no shell on this device")

	assert.Equal(t, []string{"wait", "close", "reboot recovery", "close", "close", "shell", "close"}, dev.calls)
}

func TestDeviceControlCmds_UnsupportedTransport(t *testing.T) {
	res := execute(t, nil, localArgs(t, "wait")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "does not support device control")
}

func TestConfigErrors(t *testing.T) {
	res := execute(t, nil, "--transport", "serial", "wait")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, `unsupported transport "serial"`)

	res = execute(t, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "wait")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "failed to read config file")
}

func TestConfigFile(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	tmp := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`apiVersion: adb.hjbyt.io/v1alpha1
kind: Device
metadata:
  name: workstation
spec:
  transport: local
  local:
    shell: `+bash+`
  markers:
    token: WORKSTATION_1
  remoteTmpDir: `+tmp+`
`), 0644))

	res := execute(t, nil, "--config", cfgPath, "shell", "echo", "from-config")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "from-config\n", res.stdout)
}
