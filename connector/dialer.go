package connector

import (
	"github.com/pkg/errors"

	"github.com/hjbyt/adb/common"
	"github.com/hjbyt/adb/config"
)

// Dial opens the transport named by cfg.Spec.Transport. cfg is expected to
// have been defaulted with config.SetDefaults.
func Dial(cfg *config.DeviceConfig) (Device, error) {
	if cfg == nil {
		return nil, errors.New("device config cannot be nil for Dial")
	}
	spec := cfg.Spec

	switch spec.Transport {
	case common.TransportBridge, "":
		return NewBridge(BridgeConfig{
			Executable: spec.Bridge.Executable,
			Serial:     spec.Bridge.Serial,
			Timeout:    spec.Bridge.Timeout,
		}), nil
	case common.TransportSSH:
		conn, err := NewSSH(SSHConfig{
			Username:    spec.SSH.User,
			Password:    spec.SSH.Password,
			Address:     spec.SSH.Address,
			Port:        spec.SSH.Port,
			KeyFile:     spec.SSH.PrivateKeyPath,
			AgentSocket: spec.SSH.AgentSocket,
			Timeout:     spec.SSH.Timeout,
			Bastion:     spec.SSH.Bastion,
			BastionPort: spec.SSH.BastionPort,
			BastionUser: spec.SSH.BastionUser,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to dial device %s", cfg.Metadata.Name)
		}
		return conn, nil
	case common.TransportLocal:
		return NewLocal(spec.Local.Shell), nil
	default:
		return nil, errors.Errorf("unsupported transport %q", spec.Transport)
	}
}
