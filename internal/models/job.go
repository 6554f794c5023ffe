package models

import (
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting for a pipeline slot.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates the pipeline is running.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates the job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled.
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// StepStatus represents the status of a single pipeline step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepDone       StepStatus = "done"
	StepFailed     StepStatus = "failed"
)

// Step names a pipeline step. The set present on a job depends on its mode
// and input type.
type Step string

const (
	StepExtract    Step = "extract"
	StepTranscribe Step = "transcribe"
	StepTranslate  Step = "translate"
	StepEvaluate   Step = "evaluate"
	StepTTS        Step = "tts"
	StepMerge      Step = "merge"
	StepSubtitle   Step = "subtitle"
	StepEmbed      Step = "embed"
)

// StepsForSettings returns the ordered step names for a job.
func StepsForSettings(settings Settings, inputType InputType) []Step {
	var steps []Step
	if inputType == InputTypeVideo {
		steps = append(steps, StepExtract)
	}
	steps = append(steps, StepTranscribe, StepTranslate)
	if settings.VerifyTranslation {
		steps = append(steps, StepEvaluate)
	}
	if settings.Mode == ModeSubtitle {
		steps = append(steps, StepSubtitle, StepEmbed)
		return steps
	}
	steps = append(steps, StepTTS)
	if inputType == InputTypeVideo {
		steps = append(steps, StepMerge)
	}
	return steps
}

// LogEntry is one line of a job's bounded log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

const (
	// maxLogMessageLen caps a single log line.
	maxLogMessageLen = 500
	// maxErrorLen caps the terminal error description.
	maxErrorLen = 1000
)

// Job is the central entity. It is owned by the job manager and must only be
// mutated while holding the manager's lock; the methods below assume that.
type Job struct {
	ID            string                `json:"id"`
	Status        JobStatus           `json:"status"`
	Progress      int                 `json:"progress"`
	CurrentStep   Step                `json:"current_step"`
	Steps         map[Step]StepStatus `json:"steps"`
	StepOrder     []Step              `json:"step_order"`
	Settings      Settings            `json:"settings"`
	InputFile     string              `json:"input_file"`
	InputFilename string              `json:"input_filename"`
	InputType     InputType           `json:"input_type"`
	OutputFile    string              `json:"output_file,omitempty"`
	CaptionFile   string              `json:"caption_file,omitempty"`
	Logs          []LogEntry          `json:"logs"`
	Error         string              `json:"error,omitempty"`
	QualityResult *QualityResult      `json:"quality_result,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// NewJob builds a queued job with its step map initialised to pending.
func NewJob(settings Settings, inputFile, inputFilename string, inputType InputType) *Job {
	order := StepsForSettings(settings, inputType)
	steps := make(map[Step]StepStatus, len(order))
	for _, name := range order {
		steps[name] = StepPending
	}
	return &Job{
		ID:            NewJobID(),
		Status:        JobStatusQueued,
		Steps:         steps,
		StepOrder:     order,
		CurrentStep:   order[0],
		Settings:      settings,
		InputFile:     inputFile,
		InputFilename: inputFilename,
		InputType:     inputType,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsTerminal reports whether the job has finished.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// SetProgress raises the progress value. Progress is monotonic; a lower
// value is ignored.
func (j *Job) SetProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// SetStep records a step transition and tracks the current step name.
// Unknown step names are ignored so a stale caller cannot grow the map.
func (j *Job) SetStep(name Step, status StepStatus) {
	if _, ok := j.Steps[name]; !ok {
		return
	}
	j.Steps[name] = status
	j.CurrentStep = name
}

// AppendLog appends a log line, truncating the message and dropping the
// oldest tenth of the buffer when it exceeds maxLogs.
func (j *Job) AppendLog(message string, maxLogs int) {
	if len(message) > maxLogMessageLen {
		message = message[:maxLogMessageLen]
	}
	j.Logs = append(j.Logs, LogEntry{Timestamp: time.Now().UTC(), Message: message})
	if maxLogs > 0 && len(j.Logs) > maxLogs {
		drop := maxLogs / 10
		if drop < 1 {
			drop = 1
		}
		j.Logs = append([]LogEntry(nil), j.Logs[drop:]...)
	}
}

// MarkProcessing transitions a queued job to processing.
func (j *Job) MarkProcessing() {
	if j.IsTerminal() {
		return
	}
	j.Status = JobStatusProcessing
}

// MarkCompleted transitions the job to its successful terminal state.
func (j *Job) MarkCompleted() {
	if j.IsTerminal() {
		return
	}
	j.Status = JobStatusCompleted
	j.Progress = 100
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed with a bounded error description.
func (j *Job) MarkFailed(err error) {
	if j.IsTerminal() {
		return
	}
	j.Status = JobStatusFailed
	if err != nil {
		msg := err.Error()
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		j.Error = msg
	}
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkCancelled transitions the job to cancelled.
func (j *Job) MarkCancelled() {
	if j.IsTerminal() {
		return
	}
	j.Status = JobStatusCancelled
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// LogTail returns up to n of the most recent log entries.
func (j *Job) LogTail(n int) []LogEntry {
	if n <= 0 || len(j.Logs) <= n {
		return append([]LogEntry(nil), j.Logs...)
	}
	return append([]LogEntry(nil), j.Logs[len(j.Logs)-n:]...)
}
