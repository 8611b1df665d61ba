package worker

import (
	"context"

	"tashkeela.com/diac/s3client"
)

type s3Transactions interface {
	getInputText(ctx context.Context, task *Task) ([]byte, error)
	saveResult(ctx context.Context, task *Task, text string) error
	close()
}

type s3ClientWrapper struct {
	s3Client *s3client.Client
}

func (wrapper *s3ClientWrapper) getInputText(ctx context.Context, task *Task) ([]byte, error) {
	return wrapper.s3Client.Download(ctx, task.job.InputKey)
}

func (wrapper *s3ClientWrapper) saveResult(ctx context.Context, task *Task, text string) error {
	return wrapper.s3Client.Upload(ctx, task.job.OutputKey, []byte(text))
}

// close is a no-op; sessions are not pooled.
func (wrapper *s3ClientWrapper) close() {}
