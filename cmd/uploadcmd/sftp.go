package uploadcmd

import (
	"errors"

	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/storage/sftp"
	"github.com/spf13/cobra"
)

var (
	sftpPath, sftpHost, sftpUser, sftpKey, sftpPassword string
	sftpMaxAttempts                                     int
)

func init() {
	UploadSftpCmd.Flags().StringVar(&sftpPath, "path", "", "the destination folder on the remote server (required)")
	UploadSftpCmd.Flags().StringVar(&sftpHost, "ssh-host", "", "the remote SSH host, e.g. 10.0.0.9:22 (required)")
	UploadSftpCmd.Flags().StringVar(&sftpUser, "ssh-user", "", "the remote SSH user (required)")
	// Pass encoded private key content via base64. e.g. MacOS: base64 < ~/.ssh/id_rsa
	// Or just pass the private key filename.
	UploadSftpCmd.Flags().StringVar(&sftpKey, "ssh-key", "", "the base64 encoded ssh private key content or the ssh private key file path or the raw private content (optional)")
	UploadSftpCmd.Flags().StringVar(&sftpPassword, "ssh-password", "", "the ssh password, used when no key is given (optional)")
	UploadSftpCmd.Flags().IntVar(&sftpMaxAttempts, "max-attempts", 0, "the maximum number of retries if an error is encountered; by default, retries are unlimited (optional)")

	UploadSftpCmd.MarkFlagRequired("path")
	UploadSftpCmd.MarkFlagRequired("ssh-host")
	UploadSftpCmd.MarkFlagRequired("ssh-user")
}

var UploadSftpCmd = &cobra.Command{
	Use:   "sftp",
	Short: "Resumable and concurrent SFTP upload of backup files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdutil.SetupLogger()

		if sftpKey == "" && sftpPassword == "" {
			return errors.New("ssh key or password is required for SFTP connection")
		}

		storage := sftp.NewSftp(sftpMaxAttempts, sftpPath, sftpHost, sftpUser, sftpKey)
		storage.SshPassword = sftpPassword

		return runSingle(cmd, storage)
	},
}
