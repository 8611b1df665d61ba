package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"tashkeela.com/diac/metrics"
	"tashkeela.com/diac/pipeline"
	"tashkeela.com/diac/tasks"
	"tashkeela.com/diac/utils"
)

// Message is the body of a decode request. JobID is optional; one is
// assigned when missing.
type Message struct {
	JobID     string `json:"job_id,omitempty"`
	InputKey  string `json:"input_key"`
	OutputKey string `json:"output_key"`
	Sender    string `json:"sender,omitempty"`
}

// Reply is published once a job reaches a final state for this delivery.
type Reply struct {
	JobID     string           `json:"job_id"`
	OutputKey string           `json:"output_key"`
	Status    tasks.TaskStatus `json:"status"`
	Words     int              `json:"words"`
	Errors    int              `json:"errors"`
	Sender    string           `json:"sender"`
}

type Task struct {
	delivery *amqp.Delivery
	job      *tasks.JobTask
	message  *Message
	stats    pipeline.FileStats
	logger   *zerolog.Logger
}

func (worker *Worker) processMessage(ctx context.Context, delivery *amqp.Delivery) {
	task, err := worker.createTask(ctx, delivery)
	rejectLogger := worker.logger.With().Str("message_id", delivery.MessageId).Logger()
	if err != nil {
		worker.logger.Err(err).
			Str("message_id", delivery.MessageId).
			Str("body", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		metrics.RecordJob("rejected")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.processTask(ctx, task); err != nil {
		metrics.RecordJob("rejected")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.sendReply(task); err != nil {
		task.logger.Err(err).Msg("Got error while sending reply")
		metrics.RecordJob("rejected")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.acknowledgeDelivery(delivery); err != nil {
		task.logger.Err(err).Msg("Failed to acknowledge delivery")
	}
	metrics.RecordJob(string(task.job.Status))
	task.logger.Info().Msg("Finished processing RMQ message")
}

func (worker *Worker) createTask(ctx context.Context, delivery *amqp.Delivery) (*Task, error) {
	var message Message
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message, got error %w", err)
	}
	if message.InputKey == "" || message.OutputKey == "" {
		return nil, errors.New("message needs both input_key and output_key")
	}
	if message.JobID == "" {
		message.JobID = uuid.NewString()
	}
	job, err := worker.redis.getJobTask(ctx, &message)
	if err != nil {
		return nil, fmt.Errorf("failed to query job task for message, got error %w", err)
	}
	taskLogger := worker.logger.With().Str("job_id", message.JobID).Logger()
	return &Task{
		delivery: delivery,
		job:      job,
		message:  &message,
		logger:   &taskLogger,
	}, nil
}

func (worker *Worker) processTask(ctx context.Context, task *Task) error {
	shouldPerform, err := worker.shouldPerformTask(ctx, task)
	if err != nil {
		task.logger.Err(err).Msg("Got error while trying to decide whether to run task")
		return err
	}
	if !shouldPerform {
		return nil
	}
	if err = worker.redis.onTaskStarted(ctx, task); err != nil {
		task.logger.Err(err).Msg("Failed to update task info")
		return fmt.Errorf("failed to update job task: %w", err)
	}
	if err = worker.runDecode(ctx, task); err != nil {
		task.logger.Err(err).Msg("Got error while decoding")
		if err = worker.redis.onTaskFailedWithError(ctx, task, err); err != nil {
			return err
		}
		return nil
	}
	task.logger.Info().Msg("Saved results, marking task as complete")
	if err = worker.redis.onTaskComplete(ctx, task); err != nil {
		task.logger.Err(err).Msg("Got error while trying to mark task as complete")
		return err
	}
	return nil
}

func (worker *Worker) runDecode(ctx context.Context, task *Task) (err error) {
	defer utils.RecoverWithError(&err)
	task.logger.Info().Msgf("Processing message from RMQ, attempt # %d", task.job.Attempts)
	start := time.Now()
	data, err := worker.s3.getInputText(ctx, task)
	if err != nil {
		task.logger.Err(err).Caller().Msg("Could not fetch text from s3")
		return fmt.Errorf("failed fetch data from s3: %w", err)
	}
	result, stats, err := worker.decode(ctx, string(data))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	task.stats = stats
	metrics.RecordDecode("worker", stats.Words, stats.Errors, time.Since(start))
	task.logger.Info().Int("words", stats.Words).Int("errors", stats.Errors).Msg("Finished decoding, saving results to s3")
	if err = worker.s3.saveResult(ctx, task, result); err != nil {
		task.logger.Err(err).Msg("Got error while trying to save results")
		return err
	}
	return nil
}

func (worker *Worker) shouldPerformTask(ctx context.Context, task *Task) (bool, error) {
	job := task.job
	if job.Status.Complete() {
		task.logger.Info().Msg("Task is already done. (might indicate issue acking message with RMQ). Sending reply.")
		return false, nil
	}
	if job.UserCanceled {
		task.logger.Info().Msg("Job was canceled, no need to perform this task. Sending reply.")
		return false, worker.redis.onTaskCancelled(ctx, task)
	}
	if job.Attempts >= worker.config.TaskMaxRetries {
		task.logger.Info().Msg("Task has exceeded retries. Sending reply.")
		return false, worker.redis.onTaskExceededRetries(ctx, task, worker.config.TaskMaxRetries)
	}
	return true, nil
}
