package uploadcmd

import (
	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/env"
	"github.com/liweiyi88/pgbackup/storage/s3"
	"github.com/spf13/cobra"
)

var s3Bucket, s3Prefix, s3Region, s3Endpoint string

func init() {
	UploadS3Cmd.Flags().StringVarP(&s3Bucket, "bucket", "b", "", "the s3 bucket to upload to (required)")
	UploadS3Cmd.Flags().StringVar(&s3Prefix, "prefix", "", "the key prefix of uploaded files, e.g. backups/10.0.0.5 (optional)")
	UploadS3Cmd.Flags().StringVar(&s3Region, "region", "", "the s3 region, default: AWS_REGION (optional)")
	UploadS3Cmd.Flags().StringVar(&s3Endpoint, "endpoint", "", "the endpoint of an s3 compatible service, e.g. http://127.0.0.1:9000 (optional)")
	UploadS3Cmd.MarkFlagRequired("bucket")
}

var UploadS3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Upload backup files to a s3 bucket",
	Long: `Upload backup files to a s3 bucket.
AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN are used when set,
the default AWS credential chain otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdutil.SetupLogger()

		storage := s3.NewS3(s3Bucket, s3Prefix, s3Region, "", "", "")
		storage.Endpoint = s3Endpoint

		if envs, err := env.NewEnvResolver(env.WithAWS()).Resolve(); err == nil {
			storage.AccessKeyId = envs.AWSCredentials.AccessKeyID
			storage.SecretAccessKey = envs.AWSCredentials.SecretAccessKey
			storage.SessionToken = envs.AWSCredentials.SessionToken

			if storage.Region == "" {
				storage.Region = envs.AWSCredentials.Region
			}
		}

		return runSingle(cmd, storage)
	},
}
