package worker

import (
	"context"
	"fmt"

	"tashkeela.com/diac/tasks"
)

type redisTransactions interface {
	getJobTask(ctx context.Context, message *Message) (*tasks.JobTask, error)
	onTaskStarted(ctx context.Context, task *Task) error
	onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error
	onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error
	onTaskFailedWithError(ctx context.Context, task *Task, err error) error
	onTaskComplete(ctx context.Context, task *Task) error
	close()
}

type redisClientWrapper struct {
	tasksClient *tasks.Client
}

func (wrapper *redisClientWrapper) close() {
	_ = wrapper.tasksClient.Close()
}

func (wrapper *redisClientWrapper) getJobTask(ctx context.Context, message *Message) (*tasks.JobTask, error) {
	return wrapper.tasksClient.GetOrCreate(ctx, tasks.JobTask{
		ID:        message.JobID,
		InputKey:  message.InputKey,
		OutputKey: message.OutputKey,
	})
}

// update applies updateFunc to the stored job and mirrors the result into
// task.job so the reply carries the stored state.
func (wrapper *redisClientWrapper) update(ctx context.Context, task *Task, updateFunc func(job *tasks.JobTask)) error {
	return wrapper.tasksClient.Update(ctx, task.job.ID, func(job *tasks.JobTask) {
		updateFunc(job)
		*task.job = *job
	})
}

func (wrapper *redisClientWrapper) onTaskStarted(ctx context.Context, task *Task) error {
	return wrapper.update(ctx, task, func(job *tasks.JobTask) {
		job.Status = tasks.TaskStatusStarted
		job.Attempts++
		job.StartedAt = tasks.FormattedNow()
		job.CompletedAt = nil
	})
}

func (wrapper *redisClientWrapper) onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error {
	return wrapper.update(ctx, task, func(job *tasks.JobTask) {
		job.Status = tasks.TaskStatusCanceled
		job.StartedAt = tasks.FormattedNow()
		job.CompletedAt = tasks.FormattedNow()
		job.Attempts++
		job.ErrorMessages = append(job.ErrorMessages, errorMessages...)
	})
}

func (wrapper *redisClientWrapper) onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error {
	return wrapper.update(ctx, task, func(job *tasks.JobTask) {
		job.Status = tasks.TaskStatusCompletedFailure
		job.StartedAt = tasks.FormattedNow()
		job.CompletedAt = tasks.FormattedNow()
		job.Attempts++
		job.ErrorMessages = append(job.ErrorMessages, exceededRetriesMessage(job.Attempts, maxRetries))
	})
}

func (wrapper *redisClientWrapper) onTaskFailedWithError(ctx context.Context, task *Task, err error) error {
	return wrapper.update(ctx, task, func(job *tasks.JobTask) {
		job.Status = tasks.TaskStatusFailed
		job.CompletedAt = tasks.FormattedNow()
		job.ErrorMessages = append(job.ErrorMessages, err.Error())
	})
}

func (wrapper *redisClientWrapper) onTaskComplete(ctx context.Context, task *Task) error {
	return wrapper.update(ctx, task, func(job *tasks.JobTask) {
		if !job.Status.Complete() {
			job.Status = tasks.TaskStatusCompletedSuccess
		}
		job.CompletedAt = tasks.FormattedNow()
		job.Words = task.stats.Words
		job.Errors = task.stats.Errors
	})
}

func exceededRetriesMessage(attempts, maxRetries int) string {
	return fmt.Sprintf("Task has exceeded retries. (Attempts: %d, max retries: %d )", attempts, maxRetries)
}
