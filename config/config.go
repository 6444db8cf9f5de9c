package config

import (
	"time"
)

const (
	APIVersion = "adb.hjbyt.io/v1alpha1"
	KindDevice = "Device"
)

// DeviceConfig is the top-level configuration structure.
type DeviceConfig struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   MetadataSpec `yaml:"metadata"`
	Spec       DeviceSpec   `yaml:"spec"`
}

// MetadataSpec defines metadata for the device configuration.
type MetadataSpec struct {
	Name string `yaml:"name"`
}

// DeviceSpec describes how to reach one device and how sessions on it behave.
type DeviceSpec struct {
	// Transport is one of "adb", "ssh" or "local".
	Transport    string      `yaml:"transport"`
	Bridge       BridgeSpec  `yaml:"adb,omitempty"`
	SSH          SSHSpec     `yaml:"ssh,omitempty"`
	Local        LocalSpec   `yaml:"local,omitempty"`
	Markers      MarkerSpec  `yaml:"markers,omitempty"`
	RemoteTmpDir string      `yaml:"remoteTmpDir,omitempty"`
	Logging      LoggingSpec `yaml:"logging,omitempty"`
}

// BridgeSpec configures the external bridge executable.
type BridgeSpec struct {
	Executable string        `yaml:"executable,omitempty"`
	Serial     string        `yaml:"serial,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// SSHSpec configures an SSH transport. Password, PrivateKeyPath and
// AgentSocket may be combined; at least one is required.
type SSHSpec struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port,omitempty"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password,omitempty"`
	PrivateKeyPath string        `yaml:"privateKeyPath,omitempty"`
	AgentSocket    string        `yaml:"agentSocket,omitempty"`
	Bastion        string        `yaml:"bastion,omitempty"`
	BastionPort    int           `yaml:"bastionPort,omitempty"`
	BastionUser    string        `yaml:"bastionUser,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
}

// LocalSpec configures the host-shell transport.
type LocalSpec struct {
	Shell string `yaml:"shell,omitempty"`
}

// MarkerSpec selects the opaque marker token. Random takes precedence.
type MarkerSpec struct {
	Token  string `yaml:"token,omitempty"`
	Random bool   `yaml:"random,omitempty"`
}

// LoggingSpec configures the global logger.
type LoggingSpec struct {
	Dir     string `yaml:"dir,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
	Level   string `yaml:"level,omitempty"`
}
