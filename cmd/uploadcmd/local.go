package uploadcmd

import (
	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/storage/local"
	"github.com/spf13/cobra"
)

var localPath string

func init() {
	UploadLocalCmd.Flags().StringVar(&localPath, "path", "", "the destination folder, e.g. a mounted network drive (required)")
	UploadLocalCmd.MarkFlagRequired("path")
}

var UploadLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "Copy backup files to another local folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdutil.SetupLogger()
		return runSingle(cmd, local.NewLocal(localPath))
	},
}
