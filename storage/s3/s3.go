package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	s3Client "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/liweiyi88/pgbackup/storage"
)

func NewS3(bucket, key, region, accessKeyId, secretAccessKey, sessionToken string) *S3 {
	return &S3{
		Bucket:          bucket,
		Key:             key,
		Region:          region,
		AccessKeyId:     accessKeyId,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
	}
}

type S3 struct {
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Region          string `yaml:"region"`
	AccessKeyId     string `yaml:"access-key-id"`
	SecretAccessKey string `yaml:"secret-access-key"`
	SessionToken    string `yaml:"session-token"`
	// Endpoint targets S3 compatible services, it switches to path-style addressing.
	Endpoint string `yaml:"endpoint"`
}

func (s3 *S3) client(ctx context.Context) (*s3Client.Client, error) {
	opts := make([]func(*awsconfig.LoadOptions) error, 0, 2)

	if s3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s3.Region))
	}

	if s3.AccessKeyId != "" && s3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3.AccessKeyId, s3.SecretAccessKey, s3.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3Client.NewFromConfig(cfg, func(o *s3Client.Options) {
		if s3.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s3 *S3) Save(ctx context.Context, reader io.Reader, pathGenerator storage.PathGeneratorFunc) error {
	client, err := s3.client(ctx)
	if err != nil {
		return err
	}

	key := pathGenerator(s3.Key)

	// TODO: implement re-try
	_, uploadErr := manager.NewUploader(client).Upload(ctx, &s3Client.PutObjectInput{
		Bucket: aws.String(s3.Bucket),
		Key:    aws.String(key),
		Body:   reader,
	})

	if uploadErr != nil {
		return fmt.Errorf("failed to upload file to s3 bucket %w", uploadErr)
	}

	return nil
}

// GetContent downloads the object at Key, used to load configuration files kept in S3.
func (s3 *S3) GetContent(ctx context.Context) ([]byte, error) {
	client, err := s3.client(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.GetObject(ctx, &s3Client.GetObjectInput{
		Bucket: aws.String(s3.Bucket),
		Key:    aws.String(s3.Key),
	})

	if err != nil {
		return nil, fmt.Errorf("%w unable to fetch s3 content", err)
	}

	defer func() {
		_ = result.Body.Close()
	}()

	return io.ReadAll(result.Body)
}
