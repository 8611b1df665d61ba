package tasks

type TaskStatus string

const (
	TaskStatusSubmitted        TaskStatus = "submitted"
	TaskStatusStarted          TaskStatus = "started"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCompletedSuccess TaskStatus = "completed - success"
	TaskStatusCompletedFailure TaskStatus = "completed - failure"
	TaskStatusCanceled         TaskStatus = "canceled"
)

func (s TaskStatus) Complete() bool {
	return s == TaskStatusCompletedSuccess || s == TaskStatusCompletedFailure || s == TaskStatusCanceled
}

func (s TaskStatus) Submitted() bool {
	return s == TaskStatusSubmitted || s == TaskStatusStarted
}

// JobTask is the tracked state of one queued decode job.
type JobTask struct {
	ID            string     `json:"job_id"`
	InputKey      string     `json:"input_key"`
	OutputKey     string     `json:"output_key"`
	Status        TaskStatus `json:"status"`
	Attempts      int        `json:"attempts"`
	StartedAt     *string    `json:"started_at"`
	CompletedAt   *string    `json:"completed_at"`
	ErrorMessages []string   `json:"error_messages"`
	Words         int        `json:"words"`
	Errors        int        `json:"errors"`
	UserCanceled  bool       `json:"user_canceled"`
}
