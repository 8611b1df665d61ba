package worker

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/pipeline"
	"tashkeela.com/diac/tasks"
)

const validBody = `{"job_id": "job-1", "input_key": "in/1.txt", "output_key": "out/1.txt"}`

type mockedClientsConfig struct {
	rmqMockConfig
	redisMockConfig
	s3MockConfig
	decoderMockConfig
	body string
}

type mockedClients struct {
	redis   *redisMock
	rmq     *rmqMock
	s3      *s3Mock
	decoder *decoderMock
}

type methodsCalls struct {
	redis   redisMockCalls
	rmq     rmqMockCalls
	s3      s3MockCalls
	decoder decoderCall
}

func testConfiguration(t *testing.T, config mockedClientsConfig, expectedCalls methodsCalls) *mockedClients {
	worker, mocks := configureWorker(config)
	body := config.body
	if body == "" {
		body = validBody
	}
	worker.processMessage(context.Background(), &amqp.Delivery{
		Body: []byte(body),
	})
	calls := methodsCalls{
		redis:   mocks.redis.calls,
		rmq:     mocks.rmq.calls,
		s3:      mocks.s3.calls,
		decoder: mocks.decoder.calls,
	}
	if !reflect.DeepEqual(calls, expectedCalls) {
		t.Errorf("Got unexpected called methods set.\nExpected:\n%+v\nGot:\n%+v", expectedCalls, calls)
	}
	return mocks
}

func configureWorker(config mockedClientsConfig) (*Worker, *mockedClients) {
	redis := &redisMock{config: config.redisMockConfig}
	s3 := &s3Mock{config: config.s3MockConfig}
	rmq := &rmqMock{config: config.rmqMockConfig}
	decoder := getDecoderMock(config.decoderMockConfig)

	workerLogger := logger.NewLogger("Test Worker")

	return &Worker{
			config: Config{TaskMaxRetries: 3, Sender: "test", DrainTimeout: 5 * time.Second},
			redis:  redis,
			s3:     s3,
			rmq:    rmq,
			logger: &workerLogger,
			decode: decoder.decode,
		}, &mockedClients{
			redis:   redis,
			rmq:     rmq,
			s3:      s3,
			decoder: decoder,
		}
}

func TestWorker(t *testing.T) {
	t.Run("Successful", testSuccessfulTask)
	t.Run("Assigns job id", testAssignsJobID)
	t.Run("Malformed message", testMalformedMessage)
	t.Run("Message without keys", testMessageWithoutKeys)
	t.Run("Failed to get Job task", testGetJobTaskFailed)
	t.Run("Already complete with success", testAlreadyCompletedSuccessfully)
	t.Run("Already complete with failure", testAlreadyCompletedWithFailure)
	t.Run("User cancelled", testUserCancelled)
	t.Run("Failed to update task in onTaskCancelled", testFailedToUpdateOnTaskCancelled)
	t.Run("Exceeded attempts", testExceededAttempts)
	t.Run("Failed to update task in onTaskStarted", testFailedToUpdateOnTaskStarted)
	t.Run("Failed to load text from S3", testFailedToFetchFromS3)
	t.Run("Failed due to decoder error", testDecoderError)
	t.Run("Recovered from decoder panic", testDecoderPanic)
	t.Run("Failed to update task in onTaskFailedWithError", testFailedToUpdateOnTaskFailedWithError)
	t.Run("Failed to update task in onTaskComplete", testFailedToUpdateOnTaskComplete)
	t.Run("Failed to save result to S3", testFailedToSaveToS3)
	t.Run("Failed to acknowledge delivery", testFailedAckDelivery)
	t.Run("Failed to send reply", testFailedSendReply)
}

func testSuccessfulTask(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			decoderMockConfig: decoderMockConfig{
				result: "فِيهِ\n",
				stats:  pipeline.FileStats{Words: 1},
			},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:     rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:      s3MockCalls{getInputText: true, saveResult: true},
			decoder: decoderCall{true},
		},
	)
	require.Equal(t, "فِيهِ\n", mocks.s3.saved)
	require.Equal(t, []Reply{{
		JobID:     "job-1",
		OutputKey: "out/1.txt",
		Status:    tasks.TaskStatusCompletedSuccess,
		Words:     1,
		Sender:    "test",
	}}, mocks.rmq.replies)
}

func testAssignsJobID(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{body: `{"input_key": "in/1.txt", "output_key": "out/1.txt"}`},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:     rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:      s3MockCalls{getInputText: true, saveResult: true},
			decoder: decoderCall{true},
		},
	)
	require.Len(t, mocks.rmq.replies, 1)
	_, err := uuid.Parse(mocks.rmq.replies[0].JobID)
	require.NoError(t, err)
}

func testMalformedMessage(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{body: "not json"},
		methodsCalls{
			rmq: rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testMessageWithoutKeys(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{body: `{"job_id": "job-1"}`},
		methodsCalls{
			rmq: rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testGetJobTaskFailed(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{getJobTask: withValue{fail: true}},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true},
			rmq:   rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testAlreadyCompletedSuccessfully(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getJobTask: withValue{returnedValue: tasks.JobTask{Status: tasks.TaskStatusCompletedSuccess, Words: 7}},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true},
			rmq:   rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
		},
	)
	require.Equal(t, 7, mocks.rmq.replies[0].Words)
}

func testAlreadyCompletedWithFailure(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getJobTask: withValue{returnedValue: tasks.JobTask{Status: tasks.TaskStatusCompletedFailure}},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true},
			rmq:   rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
		},
	)
}

func testUserCancelled(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getJobTask: withValue{returnedValue: tasks.JobTask{UserCanceled: true}},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true, onTaskCancelled: true},
			rmq:   rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
		},
	)
	require.Equal(t, tasks.TaskStatusCanceled, mocks.rmq.replies[0].Status)
}

func testFailedToUpdateOnTaskCancelled(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getJobTask:      withValue{returnedValue: tasks.JobTask{UserCanceled: true}},
				onTaskCancelled: failingMethod{fail: true},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true, onTaskCancelled: true},
			rmq:   rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testExceededAttempts(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getJobTask: withValue{returnedValue: tasks.JobTask{Status: tasks.TaskStatusFailed, Attempts: 3}},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true, onTaskExceededRetries: true},
			rmq:   rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
		},
	)
	require.Equal(t, tasks.TaskStatusCompletedFailure, mocks.rmq.replies[0].Status)
}

func testFailedToUpdateOnTaskStarted(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{onTaskStarted: failingMethod{fail: true}},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true, onTaskStarted: true},
			rmq:   rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testFailedToFetchFromS3(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			s3MockConfig: s3MockConfig{getInputText: withValue{fail: true}},
		},
		methodsCalls{
			redis: redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:   rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:    s3MockCalls{getInputText: true},
		},
	)
}

func testDecoderError(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			decoderMockConfig: decoderMockConfig{fail: true},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:     rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:      s3MockCalls{getInputText: true},
			decoder: decoderCall{true},
		},
	)
	require.Equal(t, tasks.TaskStatusFailed, mocks.rmq.replies[0].Status)
}

func testDecoderPanic(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			decoderMockConfig: decoderMockConfig{panic: true},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:     rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:      s3MockCalls{getInputText: true},
			decoder: decoderCall{true},
		},
	)
}

func testFailedToUpdateOnTaskFailedWithError(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			decoderMockConfig: decoderMockConfig{fail: true},
			redisMockConfig:   redisMockConfig{onTaskFailedWithError: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:     rmqMockCalls{rejectDelivery: true},
			s3:      s3MockCalls{getInputText: true},
			decoder: decoderCall{true},
		},
	)
}

func testFailedToUpdateOnTaskComplete(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{onTaskComplete: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:     rmqMockCalls{rejectDelivery: true},
			s3:      s3MockCalls{getInputText: true, saveResult: true},
			decoder: decoderCall{true},
		},
	)
}

func testFailedToSaveToS3(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			s3MockConfig: s3MockConfig{saveResult: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:     rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:      s3MockCalls{getInputText: true, saveResult: true},
			decoder: decoderCall{true},
		},
	)
}

func testFailedAckDelivery(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			rmqMockConfig: rmqMockConfig{acknowledgeDelivery: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:     rmqMockCalls{sendReply: true, acknowledgeDelivery: true},
			s3:      s3MockCalls{getInputText: true, saveResult: true},
			decoder: decoderCall{true},
		},
	)
}

func testFailedSendReply(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			rmqMockConfig: rmqMockConfig{sendReply: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:   redisMockCalls{getJobTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:     rmqMockCalls{sendReply: true, rejectDelivery: true},
			s3:      s3MockCalls{getInputText: true, saveResult: true},
			decoder: decoderCall{true},
		},
	)
}

func TestStartWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	worker, mocks := configureWorker(mockedClientsConfig{})
	mocks.rmq.deliveries = make(chan amqp.Delivery)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.StartWorker(ctx)
	}()

	mocks.rmq.deliveries <- amqp.Delivery{Body: []byte(validBody)}
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, rmqMockCalls{sendReply: true, acknowledgeDelivery: true}, mocks.rmq.calls)
	require.True(t, mocks.decoder.calls.decode)
}

func TestStartWorkerFinishesRunningJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	worker, mocks := configureWorker(mockedClientsConfig{
		s3MockConfig:      s3MockConfig{checkContext: true},
		decoderMockConfig: decoderMockConfig{result: "فِيهِ", delay: 50 * time.Millisecond},
	})
	mocks.rmq.deliveries = make(chan amqp.Delivery)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.StartWorker(ctx)
	}()

	mocks.rmq.deliveries <- amqp.Delivery{Body: []byte(validBody)}
	cancel()
	require.NoError(t, <-done)

	require.True(t, mocks.redis.calls.onTaskComplete)
	require.False(t, mocks.redis.calls.onTaskFailedWithError)
	require.Equal(t, s3MockCalls{getInputText: true, saveResult: true}, mocks.s3.calls)
	require.Equal(t, "فِيهِ", mocks.s3.saved)
	require.Equal(t, rmqMockCalls{sendReply: true, acknowledgeDelivery: true}, mocks.rmq.calls)
	require.Len(t, mocks.rmq.replies, 1)
	require.Equal(t, tasks.TaskStatusCompletedSuccess, mocks.rmq.replies[0].Status)
}

func TestStartWorkerCancelsJobsAfterDrainTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	worker, mocks := configureWorker(mockedClientsConfig{
		decoderMockConfig: decoderMockConfig{untilDone: true},
	})
	worker.config.DrainTimeout = 20 * time.Millisecond
	mocks.rmq.deliveries = make(chan amqp.Delivery)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.StartWorker(ctx)
	}()

	mocks.rmq.deliveries <- amqp.Delivery{Body: []byte(validBody)}
	cancel()
	require.NoError(t, <-done)

	require.True(t, mocks.decoder.calls.decode)
	require.True(t, mocks.redis.calls.onTaskFailedWithError)
	require.False(t, mocks.redis.calls.onTaskComplete)
	require.False(t, mocks.s3.calls.saveResult)
}

func TestStartWorkerReconnectsAfterRunningJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	worker, mocks := configureWorker(mockedClientsConfig{
		decoderMockConfig: decoderMockConfig{result: "فِيهِ", delay: 50 * time.Millisecond},
	})
	deliveries := make(chan amqp.Delivery)
	mocks.rmq.deliveries = deliveries

	swapped := make(chan rmqMockCalls, 1)
	worker.connectRMQ = func() (rmqTransactions, error) {
		swapped <- mocks.rmq.calls
		return &rmqMock{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.StartWorker(ctx)
	}()

	deliveries <- amqp.Delivery{Body: []byte(validBody)}
	close(deliveries)

	oldCalls := <-swapped
	require.Equal(t, rmqMockCalls{sendReply: true, acknowledgeDelivery: true}, oldCalls)

	cancel()
	require.NoError(t, <-done)
	require.NotSame(t, mocks.rmq, worker.rmq)
}

type acknowledger struct {
	rejected []bool
}

func (a *acknowledger) Ack(tag uint64, multiple bool) error { return nil }

func (a *acknowledger) Nack(tag uint64, multiple bool, requeue bool) error { return nil }

func (a *acknowledger) Reject(tag uint64, requeue bool) error {
	a.rejected = append(a.rejected, requeue)
	return nil
}

func TestRejectDelivery(t *testing.T) {
	workerLogger := logger.NewLogger("Test Worker")
	wrapper := &rmqClientWrapper{}

	ack := &acknowledger{}
	wrapper.rejectDelivery(&amqp.Delivery{Acknowledger: ack}, &workerLogger)
	wrapper.rejectDelivery(&amqp.Delivery{Acknowledger: ack, Redelivered: true}, &workerLogger)
	require.Equal(t, []bool{true, false}, ack.rejected)
}

func TestExceededRetriesMessage(t *testing.T) {
	require.Equal(t,
		"Task has exceeded retries. (Attempts: 4, max retries: 3 )",
		exceededRetriesMessage(4, 3))
}
