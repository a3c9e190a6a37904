package uploadcmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/config"
	"github.com/liweiyi88/pgbackup/filesync"
	"github.com/liweiyi88/pgbackup/fileutil"
	"github.com/liweiyi88/pgbackup/handler"
	"github.com/liweiyi88/pgbackup/storage"
	"github.com/spf13/cobra"
)

var ErrNoStorage = errors.New("no storage is configured")

var (
	dir, pattern, checksumFile string
	checksum, unique           bool
)

func init() {
	flags := UploadCmd.PersistentFlags()
	flags.StringVar(&dir, "dir", "", "the local folder to upload, default: <backuproot>/<host> (optional)")
	flags.StringVarP(&pattern, "pattern", "p", "", "only upload files that follow the same pattern, for example *.gz (optional)")
	flags.BoolVar(&checksum, "checksum", false, "whether to save the checksum to avoid repeating file transfers, default false (optional)")
	flags.StringVar(&checksumFile, "checksum-file", "", "save checksum results in a specific file if --checksum=true, default: <dir>/checksum.pgbackup (optional)")
	flags.BoolVar(&unique, "unique", false, "prefix every uploaded file with a UTC timestamp (optional)")

	UploadCmd.AddCommand(UploadS3Cmd)
	UploadCmd.AddCommand(UploadSftpCmd)
	UploadCmd.AddCommand(UploadLocalCmd)
}

var UploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload backup files to the storages of the config file",
	Long: `Upload the files of a local backup folder to every storage of the config file.
Use a sub command to upload to a single storage without a config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdutil.SetupLogger()

		cfg, err := cmdutil.LoadConfig(cmd.Context())
		if err != nil {
			return err
		}

		storages := cfg.Storages()
		if len(storages) == 0 {
			return ErrNoStorage
		}

		var errs error
		for i, s := range storages {
			index := i
			if len(storages) == 1 {
				index = -1
			}

			errs = errors.Join(errs, upload(cmd, cfg, s, index))
		}

		return errs
	},
}

// stateFile returns the checksum state file of the storage at index, every
// storage keeps its own state when several are configured.
func stateFile(source string, index int) string {
	file := checksumFile
	if file == "" {
		file = filepath.Join(source, filesync.ChecksumStateFile)
	}

	if index < 0 {
		return file
	}

	return fmt.Sprintf("%s.%d", file, index)
}

func upload(cmd *cobra.Command, cfg *config.Config, s storage.Storage, index int) error {
	ctx := cmd.Context()

	source := dir
	if source == "" {
		target, _, err := cmdutil.ResolveTarget(cfg, nil)
		if err != nil {
			return err
		}

		source = target.BackupDir()
	}

	opts := []handler.UploadOption{
		handler.WithPattern(pattern),
		handler.WithUnique(unique),
		handler.WithUploadWorkers(cfg.Workers),
	}

	if checksum {
		opts = append(opts, handler.WithChecksum(stateFile(source, index)))
	}

	if files, err := fileutil.ListFiles(source, pattern, filesync.ChecksumStateFile); err == nil {
		if progress := cmdutil.NewProgress(cmd, len(files), "uploading"); progress != nil {
			opts = append(opts, handler.WithUploadProgress(progress))
		}
	}

	report := handler.NewUploadHandler(s, opts...).Upload(ctx, source)
	return cmdutil.Notify(ctx, cmd, cfg, report)
}

// runSingle uploads to the storage of a sub command.
func runSingle(cmd *cobra.Command, s storage.Storage) error {
	cfg, err := cmdutil.LoadConfig(cmd.Context())
	if err != nil {
		return err
	}

	return upload(cmd, cfg, s, -1)
}
