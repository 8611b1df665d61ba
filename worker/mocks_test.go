package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"tashkeela.com/diac/pipeline"
	"tashkeela.com/diac/tasks"
)

type failingMethod struct {
	fail bool
}

type withValue struct {
	fail          bool
	returnedValue interface{}
}

type decoderMock struct {
	decode pipeline.TextDecoder
	config decoderMockConfig
	calls  decoderCall
}

type decoderMockConfig struct {
	fail   bool
	panic  bool
	result string
	stats  pipeline.FileStats
	// delay holds the decode back unless ctx is done first.
	delay time.Duration
	// untilDone blocks the decode until ctx is done.
	untilDone bool
}

type decoderCall struct {
	decode bool
}

type redisMock struct {
	config redisMockConfig
	calls  redisMockCalls
}

type redisMockConfig struct {
	getJobTask            withValue
	onTaskCancelled       failingMethod
	onTaskStarted         failingMethod
	onTaskExceededRetries failingMethod
	onTaskFailedWithError failingMethod
	onTaskComplete        failingMethod
}

type redisMockCalls struct {
	getJobTask            bool
	onTaskCancelled       bool
	onTaskStarted         bool
	onTaskExceededRetries bool
	onTaskFailedWithError bool
	onTaskComplete        bool
}

type rmqMock struct {
	config     rmqMockConfig
	calls      rmqMockCalls
	deliveries chan amqp.Delivery
	replies    []Reply
}

type rmqMockConfig struct {
	sendReply           failingMethod
	acknowledgeDelivery failingMethod
}

type rmqMockCalls struct {
	sendReply           bool
	acknowledgeDelivery bool
	rejectDelivery      bool
}

type s3Mock struct {
	config s3MockConfig
	calls  s3MockCalls
	saved  string
}

type s3MockConfig struct {
	getInputText withValue
	saveResult   failingMethod
	// checkContext fails calls made with a done ctx, as the S3 SDK does.
	checkContext bool
}

type s3MockCalls struct {
	getInputText bool
	saveResult   bool
}

func (mock *s3Mock) close() {}

func (mock *rmqMock) close() {}

func (mock *redisMock) close() {}

func getDecoderMock(config decoderMockConfig) *decoderMock {
	mock := decoderMock{config: config}
	mock.decode = func(ctx context.Context, text string) (string, pipeline.FileStats, error) {
		mock.calls.decode = true
		if mock.config.delay > 0 {
			select {
			case <-time.After(mock.config.delay):
			case <-ctx.Done():
				return "", pipeline.FileStats{}, ctx.Err()
			}
		}
		if mock.config.untilDone {
			<-ctx.Done()
			return "", pipeline.FileStats{}, ctx.Err()
		}
		if mock.config.panic {
			panic("decoder blew up")
		}
		if mock.config.fail {
			return "", pipeline.FileStats{}, errors.New("failed to decode")
		}
		return mock.config.result, mock.config.stats, nil
	}
	return &mock
}

func (mock *redisMock) getJobTask(ctx context.Context, message *Message) (*tasks.JobTask, error) {
	mock.calls.getJobTask = true
	if mock.config.getJobTask.fail {
		return nil, errors.New("failed to get job task")
	}
	jobTask := tasks.JobTask{Status: tasks.TaskStatusSubmitted}
	if configured, ok := mock.config.getJobTask.returnedValue.(tasks.JobTask); ok {
		jobTask = configured
	}
	jobTask.ID = message.JobID
	jobTask.InputKey = message.InputKey
	jobTask.OutputKey = message.OutputKey
	return &jobTask, nil
}

func (mock *redisMock) onTaskStarted(ctx context.Context, task *Task) error {
	mock.calls.onTaskStarted = true
	if mock.config.onTaskStarted.fail {
		return errors.New("failed to update job task on start")
	}
	task.job.Status = tasks.TaskStatusStarted
	task.job.Attempts++
	return nil
}

func (mock *redisMock) onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error {
	mock.calls.onTaskCancelled = true
	if mock.config.onTaskCancelled.fail {
		return errors.New("failed to update job task on cancel")
	}
	task.job.Status = tasks.TaskStatusCanceled
	return nil
}

func (mock *redisMock) onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error {
	mock.calls.onTaskExceededRetries = true
	if mock.config.onTaskExceededRetries.fail {
		return errors.New("failed to update job task on exceeded retries")
	}
	task.job.Status = tasks.TaskStatusCompletedFailure
	return nil
}

func (mock *redisMock) onTaskFailedWithError(ctx context.Context, task *Task, err error) error {
	mock.calls.onTaskFailedWithError = true
	if mock.config.onTaskFailedWithError.fail {
		return errors.New("failed to update job task on fail with error")
	}
	task.job.Status = tasks.TaskStatusFailed
	task.job.ErrorMessages = append(task.job.ErrorMessages, err.Error())
	return nil
}

func (mock *redisMock) onTaskComplete(ctx context.Context, task *Task) error {
	mock.calls.onTaskComplete = true
	if mock.config.onTaskComplete.fail {
		return errors.New("failed to update job task on complete")
	}
	task.job.Status = tasks.TaskStatusCompletedSuccess
	task.job.Words = task.stats.Words
	task.job.Errors = task.stats.Errors
	return nil
}

func (mock *rmqMock) rejectDelivery(delivery *amqp.Delivery, workerLogger *zerolog.Logger) {
	mock.calls.rejectDelivery = true
}

func (mock *rmqMock) getDeliveriesCh() <-chan amqp.Delivery {
	return mock.deliveries
}

func (mock *rmqMock) getReqChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) getRespChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) sendReply(task *Task) error {
	mock.calls.sendReply = true
	if mock.config.sendReply.fail {
		return errors.New("failed to send reply")
	}
	mock.replies = append(mock.replies, newReply(task, "test"))
	return nil
}

func (mock *rmqMock) acknowledgeDelivery(delivery *amqp.Delivery) error {
	mock.calls.acknowledgeDelivery = true
	if mock.config.acknowledgeDelivery.fail {
		return errors.New("failed to acknowledge delivery")
	}
	return nil
}

func (mock *s3Mock) getInputText(ctx context.Context, task *Task) ([]byte, error) {
	mock.calls.getInputText = true
	if mock.config.checkContext && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if mock.config.getInputText.fail {
		return nil, errors.New("mock: failed to load from s3")
	}
	if b, ok := mock.config.getInputText.returnedValue.([]byte); ok {
		return b, nil
	}
	return []byte("فيه"), nil
}

func (mock *s3Mock) saveResult(ctx context.Context, task *Task, text string) error {
	mock.calls.saveResult = true
	if mock.config.checkContext && ctx.Err() != nil {
		return ctx.Err()
	}
	if mock.config.saveResult.fail {
		return errors.New("failed to upload results")
	}
	mock.saved = text
	return nil
}
