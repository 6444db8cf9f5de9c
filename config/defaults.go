package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/hjbyt/adb/common"
)

const (
	DefaultBridgeTimeout = 10 * time.Minute
	DefaultSSHTimeout    = 30 * time.Second
	DefaultLogLevel      = "info"
)

// NewDefault returns a configuration for the default bridge device, used
// when no configuration file is given.
func NewDefault() *DeviceConfig {
	cfg := &DeviceConfig{
		APIVersion: APIVersion,
		Kind:       KindDevice,
		Metadata:   MetadataSpec{Name: "default"},
	}
	SetDefaults(&cfg.Spec)
	return cfg
}

// SetDefaults fills unset fields of spec in place.
func SetDefaults(spec *DeviceSpec) {
	if spec.Transport == "" {
		spec.Transport = common.TransportBridge
	}
	spec.Transport = strings.ToLower(spec.Transport)

	if spec.Bridge.Executable == "" {
		spec.Bridge.Executable = common.DefaultBridgeCommand
	}
	if spec.Bridge.Timeout <= 0 {
		spec.Bridge.Timeout = DefaultBridgeTimeout
	}

	if spec.SSH.Port <= 0 {
		spec.SSH.Port = common.DefaultSSHPort
	}
	if spec.SSH.Timeout <= 0 {
		spec.SSH.Timeout = DefaultSSHTimeout
	}
	if spec.SSH.Bastion != "" {
		if spec.SSH.BastionPort <= 0 {
			spec.SSH.BastionPort = common.DefaultSSHPort
		}
		if spec.SSH.BastionUser == "" {
			spec.SSH.BastionUser = spec.SSH.User
		}
	}

	if spec.Local.Shell == "" {
		spec.Local.Shell = common.DefaultLocalShell
	}
	if spec.RemoteTmpDir == "" {
		spec.RemoteTmpDir = common.GetRemoteTmpDir()
	}
	if spec.Logging.Level == "" {
		spec.Logging.Level = DefaultLogLevel
	}
}

// Validate checks a defaulted spec. All problems are reported together.
func Validate(spec *DeviceSpec) error {
	var result *multierror.Error

	switch spec.Transport {
	case common.TransportBridge:
		if spec.Bridge.Executable == "" {
			result = multierror.Append(result, fmt.Errorf("adb.executable must be set"))
		}
	case common.TransportSSH:
		if spec.SSH.Address == "" {
			result = multierror.Append(result, fmt.Errorf("ssh.address must be set"))
		}
		if spec.SSH.User == "" {
			result = multierror.Append(result, fmt.Errorf("ssh.user must be set"))
		}
		if spec.SSH.Password == "" && spec.SSH.PrivateKeyPath == "" && spec.SSH.AgentSocket == "" {
			result = multierror.Append(result, fmt.Errorf("ssh requires one of password, privateKeyPath or agentSocket"))
		}
	case common.TransportLocal:
		if spec.Local.Shell == "" {
			result = multierror.Append(result, fmt.Errorf("local.shell must be set"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported transport %q, expected one of %s, %s, %s",
			spec.Transport, common.TransportBridge, common.TransportSSH, common.TransportLocal))
	}

	if spec.Markers.Token != "" {
		for _, c := range spec.Markers.Token {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
				result = multierror.Append(result, fmt.Errorf("markers.token %q may only contain letters, digits and '_'", spec.Markers.Token))
				break
			}
		}
	}
	if !strings.HasPrefix(spec.RemoteTmpDir, "/") {
		result = multierror.Append(result, fmt.Errorf("remoteTmpDir %q must be an absolute path", spec.RemoteTmpDir))
	}
	if _, err := logrus.ParseLevel(spec.Logging.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
	}

	return result.ErrorOrNil()
}

// LogLevel returns the parsed logging level, InfoLevel if it is invalid.
func (s LoggingSpec) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(s.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
