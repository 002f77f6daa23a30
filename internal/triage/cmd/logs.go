package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print or follow the newest debug log file",
	Long: `Print the newest log file written with TRIAGE_LOG_TO_FILE set, or follow it
while another triage run is writing to it.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir = cfg.LogDir
		}

		path, err := logging.LatestLogFile(dir)
		if err != nil {
			return err
		}
		if !follow {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		}
		return followLog(cmd, path)
	},
}

func followLog(cmd *cobra.Command, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow: true,
		ReOpen: true,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", path, err)
	}
	defer t.Cleanup()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow the log file")
	logsCmd.Flags().String("dir", "", "Log directory (default TRIAGE_LOG_DIR)")
}
