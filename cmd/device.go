package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hjbyt/adb/connector"
	"github.com/hjbyt/adb/logger"
)

func newPushCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push <local> <remote>",
		Short: "Copy a file or directory to the device",
		Long: `Copy a local file to the device. A directory is packed into one archive,
copied and unpacked into <remote>, creating it if needed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, remote := args[0], args[1]
			info, err := os.Stat(local)
			if err != nil {
				return errors.Wrapf(err, "failed to stat %s", local)
			}

			dev, sess, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			ctx := commandContext(cmd)
			if info.IsDir() {
				err = sess.PushTree(ctx, local, remote)
			} else {
				err = dev.CopyToRemote(ctx, local, remote)
			}
			if err != nil {
				return err
			}
			logger.Log.InfofDevice(o.cfg.Metadata.Name, "Pushed %s to %s", local, remote)
			return nil
		},
	}
}

func newPullCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <remote> <local>",
		Short: "Copy a file from the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, _, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			puller, ok := dev.(connector.Puller)
			if !ok {
				return errors.Errorf("transport %s cannot pull files", o.cfg.Spec.Transport)
			}
			if err := puller.Pull(commandContext(cmd), args[0], args[1]); err != nil {
				return err
			}
			logger.Log.InfofDevice(o.cfg.Metadata.Name, "Pulled %s to %s", args[0], args[1])
			return nil
		},
	}
}

func powerController(o *rootOptions, dev connector.Device) (connector.PowerController, error) {
	pc, ok := dev.(connector.PowerController)
	if !ok {
		return nil, errors.Errorf("transport %s does not support device control", o.cfg.Spec.Transport)
	}
	return pc, nil
}

func newWaitCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Block until the device is online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, _, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			pc, err := powerController(o, dev)
			if err != nil {
				return err
			}
			if err := pc.WaitForDevice(commandContext(cmd)); err != nil {
				return err
			}
			logger.Log.DebugfDevice(o.cfg.Metadata.Name, "Device is online")
			return nil
		},
	}
}

func newRebootCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reboot [bootloader|recovery|...]",
		Short: "Reboot the device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, _, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			pc, err := powerController(o, dev)
			if err != nil {
				return err
			}
			option := ""
			if len(args) == 1 {
				option = args[0]
			}
			logger.Log.InfoDevice(o.cfg.Metadata.Name, "Rebooting", logrus.Fields{"option": option})
			return pc.Reboot(commandContext(cmd), option)
		},
	}
}
