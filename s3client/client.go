package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"tashkeela.com/diac/logger"
)

var ErrNotFound = errors.New("s3 object not found")

type EnvironmentConfig struct {
	BucketName  string `envconfig:"DIAC_S3_BUCKET" required:"true"`
	Region      string `envconfig:"DIAC_AWS_REGION" default:"us-east-1"`
	AwsEndpoint string `envconfig:"DIAC_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"DIAC_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"DIAC_AWS_ACCESS_KEY" default:""`
}

type Client struct {
	mu         sync.Mutex
	sess       *session.Session
	bucketName string
	env        EnvironmentConfig
	logger     zerolog.Logger
	sdkLogger  zerolog.Logger
}

func New() (*Client, error) {
	clientLogger := logger.NewLogger("S3Client")
	env, err := readEnvironment()
	if err != nil {
		clientLogger.Err(err).Caller().Msg("Failed to get proper variables from environment")
		return nil, err
	}
	return NewWithConfig(env)
}

func NewWithConfig(env EnvironmentConfig) (*Client, error) {
	client := &Client{
		bucketName: env.BucketName,
		env:        env,
		logger:     logger.NewLogger("S3Client"),
		sdkLogger:  logger.NewLogger("S3-SDK"),
	}
	if err := client.acquireNewSession(); err != nil {
		return nil, err
	}
	return client, nil
}

func (client *Client) Bucket() string {
	return client.bucketName
}

func (client *Client) Upload(ctx context.Context, key string, data []byte) error {
	params := &s3manager.UploadInput{
		Bucket: aws.String(client.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	err := client.upload(ctx, client.session(), params)
	if err == nil {
		return nil
	}
	sess, refreshErr := client.refreshSession(err)
	if refreshErr != nil {
		return err
	}
	params.Body = bytes.NewReader(data)
	return client.upload(ctx, sess, params)
}

// Download fetches an object; a missing key yields an error matching ErrNotFound.
func (client *Client) Download(ctx context.Context, key string) ([]byte, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(client.bucketName),
		Key:    aws.String(key),
	}
	res, err := client.download(ctx, client.session(), params)
	if err == nil || errors.Is(err, ErrNotFound) {
		return res, err
	}
	sess, refreshErr := client.refreshSession(err)
	if refreshErr != nil {
		return nil, err
	}
	return client.download(ctx, sess, params)
}

func (client *Client) upload(ctx context.Context, sess *session.Session, params *s3manager.UploadInput) error {
	keyLogger := client.logger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	sdkLog := client.sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	keyLogger.Debug().Msg("Uploading the object")
	_, err := uploader.UploadWithContext(ctx, params)
	if err != nil {
		keyLogger.Error().Err(err).Msg("Failed to upload object")
	}
	return err
}

func (client *Client) download(ctx context.Context, sess *session.Session, params *s3.GetObjectInput) ([]byte, error) {
	keyLogger := client.logger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	sdkLog := client.sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	buf := aws.NewWriteAtBuffer([]byte{})

	keyLogger.Debug().Msg("Downloading object")
	size, err := downloader.DownloadWithContext(ctx, buf, params)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s/%s: %w", *params.Bucket, *params.Key, ErrNotFound)
		}
		keyLogger.Error().Err(err).Msg("Failed to download object")
		return nil, err
	}
	keyLogger.Debug().Msgf("Downloaded %v bytes", size)
	return buf.Bytes(), nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

func (client *Client) session() *session.Session {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.sess
}

func (client *Client) refreshSession(cause error) (*session.Session, error) {
	client.logger.Error().Err(cause).Msg("Caught error while using S3 session, trying to refresh it")
	if err := client.acquireNewSession(); err != nil {
		client.logger.Error().Err(err).Msg("Caught error while refreshing S3 session")
		return nil, err
	}
	client.logger.Info().Msg("Successfully refreshed session")
	return client.session(), nil
}

func (client *Client) createEC2Config() *aws.Config {
	return &aws.Config{
		Region:     aws.String(client.env.Region),
		MaxRetries: aws.Int(4),
	}
}

func (client *Client) createEnvConfig() (*aws.Config, error) {
	creds := credentials.NewStaticCredentials(client.env.AccessKeyID, client.env.AccessKey, "")
	if _, err := creds.Get(); err != nil {
		return nil, fmt.Errorf("credentials from environment: %w", err)
	}
	cfg := aws.NewConfig().
		WithRegion(client.env.Region).
		WithMaxRetries(4).
		WithCredentials(creds)
	if len(client.env.AwsEndpoint) > 0 {
		cfg = cfg.WithEndpoint(client.env.AwsEndpoint).WithS3ForcePathStyle(true)
	}
	return cfg, nil
}

// acquireNewSession prefers the instance role and falls back to static
// credentials from the environment. An explicit endpoint (minio, localstack)
// always uses static credentials.
func (client *Client) acquireNewSession() error {
	if len(client.env.AwsEndpoint) == 0 {
		sess, err := session.NewSession(client.createEC2Config())
		if err == nil {
			if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err == nil {
				client.setSession(sess)
				client.logger.Info().Msg("S3 session successfully initialized using EC2")
				return nil
			}
		}
		client.logger.Info().Msg("Could not initialize S3 session using EC2, trying env credentials")
	}

	cfg, err := client.createEnvConfig()
	if err != nil {
		client.logger.Error().Err(err).Msg("Could not initialize S3 session")
		return err
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		client.logger.Error().Err(err).Msg("Could not initialize S3 session")
		return err
	}
	client.setSession(sess)
	client.logger.Info().Msg("S3 session successfully initialized using env credentials")
	return nil
}

func (client *Client) setSession(sess *session.Session) {
	client.mu.Lock()
	client.sess = sess
	client.mu.Unlock()
}

func readEnvironment() (EnvironmentConfig, error) {
	var config EnvironmentConfig
	err := envconfig.Process("", &config)
	return config, err
}

type s3Logger struct {
	log zerolog.Logger
}

func getLogger(log zerolog.Logger) *s3Logger {
	return &s3Logger{log}
}

func (l *s3Logger) Log(v ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(v...))
}
