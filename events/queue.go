package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/logger"
)

// QueueConfig configures the durable task queue.
type QueueConfig struct {
	// MaxAttempts is the number of times a task is attempted before it is
	// moved to the dead letter queue, default 4.
	MaxAttempts int
	// BackoffBase is the delay before the first retry. The delay doubles
	// with every further retry. Default 30 seconds.
	BackoffBase time.Duration
	// DeadLetterQueue is the name of the dead letter queue, default
	// "firmware_events_dead_letter".
	DeadLetterQueue string
}

// Task is a unit of work on a named queue. Tasks are processed asynchronously
// and at least once. A failing task is retried with exponentially growing
// delays until its attempts are exhausted, then it is moved to the dead
// letter queue. Receive tasks with HandleTask(), enqueue them with Enqueue().
type Task struct {
	Serial       int
	Queue        string
	Key          string
	DeviceID     uuid.UUID
	Payload      json.RawMessage
	Timestamp    time.Time
	AttemptsLeft int
}

// WithPayload adds a payload to a task. Payload can be an object or a []byte
func (t Task) WithPayload(payload interface{}) Task {
	data, ok := payload.([]byte)
	if !ok {
		data, _ = json.Marshal(payload)
	}
	t.Payload = data
	return t
}

// PermanentError marks a task failure that no retry can heal.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that the task pipeline moves the failing task
// straight to the dead letter queue, without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// task is the stored representation of a Task, together with the serialized
// logger context it was enqueued with
type task struct {
	Task
	ContextData []byte
}

// context restores the logger context the task was enqueued with
func (t *task) context() context.Context {
	return logger.ContextWithLoggerFromData(context.Background(), t.ContextData)
}

type txTask struct {
	task
	tx *sql.Tx
}

func (s *Service) handleTasks(router *mux.Router, updateSchema bool) {
	if updateSchema {
		_, err := s.db.Exec(`CREATE table IF NOT EXISTS ` + s.db.Schema + `."_task_"
(serial SERIAL,
queue VARCHAR NOT NULL,
key VARCHAR NOT NULL DEFAULT '',
device_id uuid NOT NULL DEFAULT uuid_nil(),
payload JSON NOT NULL DEFAULT'{}'::jsonb,
timestamp TIMESTAMP NOT NULL DEFAULT now(),
attempts_left INTEGER NOT NULL,
context JSON NOT NULL DEFAULT'{}'::jsonb,
scheduled_at TIMESTAMP,
failure VARCHAR NOT NULL DEFAULT '',
failed_at TIMESTAMP,
PRIMARY KEY(serial)
);
CREATE index IF NOT EXISTS tasks_scheduled_at_index ON ` + s.db.Schema + `._task_(scheduled_at);
CREATE index IF NOT EXISTS tasks_queue_index ON ` + s.db.Schema + `._task_(queue);
`)

		if err != nil {
			panic(err)
		}
	}

	deadLetterQueue := s.queueConfig.DeadLetterQueue

	s.tasksInsertQuery = `INSERT INTO ` + s.db.Schema + `."_task_"
	(queue,key,device_id,payload,timestamp,attempts_left,context)
	VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING serial;`

	// the claim decrements attempts_left and schedules the next retry with
	// exponentially growing delays: base, 2*base, 4*base and so on. The SET
	// expression sees attempts_left before the decrement.
	s.tasksUpdateQuery = `UPDATE ` + s.db.Schema + `."_task_"
SET attempts_left = attempts_left - 1,
scheduled_at = $1::TIMESTAMP + $2 * pow(2, $3 - attempts_left) * INTERVAL '1 second'
WHERE serial = (
SELECT serial
 FROM ` + s.db.Schema + `."_task_"
 WHERE queue <> '` + deadLetterQueue + `' AND attempts_left > 0 AND (scheduled_at IS NULL OR $1 > scheduled_at)
 ORDER BY serial
 FOR UPDATE SKIP LOCKED
 LIMIT 1
)
RETURNING serial, queue, key, device_id, payload, timestamp, attempts_left, context;
`
	s.tasksDeleteQuery = `DELETE FROM ` + s.db.Schema + `."_task_"
WHERE serial = $1 RETURNING serial;`

	s.tasksDeadLetterQuery = `UPDATE ` + s.db.Schema + `."_task_"
SET queue = '` + deadLetterQueue + `', failure = $2, failed_at = $3 WHERE serial = $1;`

	s.tasksRequeueQuery = `UPDATE ` + s.db.Schema + `."_task_"
SET queue = $2, attempts_left = $3, scheduled_at = NULL, failure = '', failed_at = NULL
WHERE serial = $1 AND queue = '` + deadLetterQueue + `' RETURNING serial;`

	s.tasksSweepQuery = `UPDATE ` + s.db.Schema + `."_task_"
SET queue = '` + deadLetterQueue + `', failure = 'retries exhausted', failed_at = $1
WHERE queue <> '` + deadLetterQueue + `' AND attempts_left = 0;`

	logger.Default().Debugln("task processing pipelines")
	logger.Default().Debugln("  handle route: /fwevents/health GET")
	logger.Default().Debugln("  handle route: /fwevents/health/details GET")
	logger.Default().Debugln("  handle route: /fwevents/deadletters GET, DELETE")
	logger.Default().Debugln("  handle route: /fwevents/deadletters/{serial}/requeue PUT")

	router.HandleFunc("/fwevents/health", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if s.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if !auth.HasRole("admin") {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
		}
		s.health(w, r, false)
	}).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/fwevents/health/details", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if s.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if !auth.HasRole("admin") {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
		}
		s.health(w, r, true)
	}).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/fwevents/deadletters", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if s.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if !auth.HasRole("admin") {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
		}
		s.deadLetters(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/fwevents/deadletters/{serial}/requeue", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if s.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if !auth.HasRole("admin") {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
		}
		s.requeueDeadLetter(w, r)
	}).Methods(http.MethodOptions, http.MethodPut)
	router.HandleFunc("/fwevents/deadletters", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if s.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if !auth.HasRole("admin") {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
		}
		s.purgeDeadLetters(w, r)
	}).Methods(http.MethodOptions, http.MethodDelete)
}

// HandleTask installs a callback handler for the specified queue. Handlers
// are executed out-of-band. If a handler fails (i.e. it returns a non-nil
// error), the task will be retried a few times with increasing timeout,
// unless the error is wrapped with Permanent().
func (s *Service) HandleTask(queue string, handler func(context.Context, Task) error) {
	if _, ok := s.handlers[queue]; ok {
		log.Fatalf("task handler for %s already installed", queue)
	}
	s.handlers[queue] = handler
}

// Enqueue adds the task to its queue for asynchronous processing. Payload
// can be nil, callbacks registered with HandleTask() will be called.
func (s *Service) Enqueue(ctx context.Context, t Task) error {
	if _, ok := s.handlers[t.Queue]; !ok {
		return fmt.Errorf("no task handler installed for queue %s", t.Queue)
	}

	data := t.Payload
	if data == nil { // we do not want to pass an empty []byte
		data = []byte("{}")
	}
	contextData := logger.SerializeLoggerContext(ctx)

	var serial int
	err := s.db.QueryRowContext(ctx, s.tasksInsertQuery,
		t.Queue,
		t.Key,
		t.DeviceID,
		[]byte(data),
		time.Now().UTC(),
		s.queueConfig.MaxAttempts,
		contextData,
	).Scan(&serial)

	if err != nil {
		return err
	}
	s.TriggerTasks()
	return nil
}

func (s *Service) pipelineWorker(n int, tasks <-chan txTask, ready chan<- bool) {

	for t := range tasks {
		tx := t.tx
		rlog := logger.Default()

		err := tx.Commit()
		if err != nil {
			rlog.Errorf("error committing %s#%d: %s", t.Queue, t.Serial, err.Error())
		}

		// call the registered handler in a panic/recover envelope
		err = func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("recovered from panic: %s", r)
					debug.PrintStack()
				}
			}()
			ctx := t.context()
			rlog = logger.FromContext(ctx)
			errorMessage := fmt.Sprintf("Task %s[%s] %v", t.Queue, t.Key, t.DeviceID)
			timeout := time.AfterFunc(time.Duration(20*time.Second), func() {
				logger.Default().Errorf("This (%s) is taking a long time...", errorMessage)
			})
			if handler, ok := s.handlers[t.Queue]; ok {
				err = handler(ctx, t.Task)
			} else {
				err = fmt.Errorf("no handler for queue %s", t.Queue)
			}
			timeout.Stop()
			return
		}()

		if err != nil {
			rlog.WithError(err).Error("error processing " + t.Queue + "[" + t.Key + "] #" + strconv.Itoa(t.Serial))
			var permanent *PermanentError
			if errors.As(err, &permanent) || t.AttemptsLeft == 0 {
				// the task failed for good, keep it on the dead letter queue
				_, dlErr := s.db.Exec(s.tasksDeadLetterQuery, t.Serial, err.Error(), time.Now().UTC())
				if dlErr != nil {
					rlog.WithError(dlErr).Error("could not dead letter task " + t.Queue + "[" + t.Key + "] #" + strconv.Itoa(t.Serial))
				} else {
					rlog.Warnln("moved task " + t.Queue + "[" + t.Key + "] #" + strconv.Itoa(t.Serial) + " to the dead letter queue")
				}
			}
		} else {
			rlog.Info("successfully processed " + t.Queue + "[" + t.Key + "] #" + strconv.Itoa(t.Serial))
			// task handled sucessfully, delete from queue
			var serial int
			err = s.db.QueryRow(s.tasksDeleteQuery, &t.Serial).Scan(&serial)
			if err != nil && err != sql.ErrNoRows {
				rlog.WithError(err).Error("could not delete processed task " + t.Queue + "[" + t.Key + "] #" + strconv.Itoa(t.Serial))
			}
		}
		ready <- true

	}
}

// TriggerTasks triggers pipeline processing.
func (s *Service) TriggerTasks() {
	s.hasTasksToProcessLock.Lock()
	s.hasTasksToProcess = true
	s.hasTasksToProcessLock.Unlock()
	if s.processTasksAsyncRuns {
		if len(s.processTasksAsyncTrigger) == 0 {
			s.processTasksAsyncTrigger <- struct{}{}
		}

	}
}

// HasTasksToProcess returns true, if there are tasks to process.
// It then resets the process flag.
func (s *Service) HasTasksToProcess() bool {
	s.hasTasksToProcessLock.Lock()
	defer s.hasTasksToProcessLock.Unlock()
	result := s.hasTasksToProcess
	s.hasTasksToProcess = false
	return result
}

// ProcessTasksAsync starts a task processing loop. It returns immediately.
// This function must only be called once.
//
// If heartbeat is larger than 0, the function also starts a heartbeat timer
// for processing of scheduled retries.
//
// Left-over tasks in the database are processed right away.
func (s *Service) ProcessTasksAsync(heartbeat time.Duration) {
	if s.processTasksAsyncRuns {
		panic("already processing tasks")
	}
	s.processTasksAsyncRuns = true
	s.processTasksAsyncTrigger = make(chan struct{}, 10)

	if heartbeat > 0 {
		// start heartbeat to process scheduled retries
		go func() {
			for {
				time.Sleep(heartbeat)
				s.TriggerTasks()
			}
		}()
	}

	go func() {
		s.ProcessTasksSync(5 * time.Minute)
		for {
			<-s.processTasksAsyncTrigger
			s.ProcessTasksSync(5 * time.Minute)
		}
	}()

}

// ProcessTasksSync commissions all pending tasks up to the specified maximum
// duration and then returns after the last commissioned task was fully
// processed. It returns true if it has maxed out and there are more tasks to
// process, otherwise it returns false. If you pass 0, it will process all
// pending tasks.
func (s *Service) ProcessTasksSync(max time.Duration) bool {
	rlog := logger.FromContext(nil)
	startTime := time.Now()

	// tasks that ran out of attempts before this process came up belong on
	// the dead letter queue
	_, err := s.db.Exec(s.tasksSweepQuery, time.Now().UTC())
	if err != nil {
		rlog.WithError(err).Error("failed to sweep exhausted tasks")
	}

	getTask := func() (txt txTask, err error) {
		txt.tx, err = s.db.BeginTx(context.Background(), nil)
		if err != nil {
			rlog.WithError(err).Error("failed to begin transaction")
			return
		}
		now := time.Now().UTC()
		err = txt.tx.QueryRow(s.tasksUpdateQuery,
			now,
			s.queueConfig.BackoffBase.Seconds(),
			s.queueConfig.MaxAttempts,
		).Scan(
			&txt.Serial,
			&txt.Queue,
			&txt.Key,
			&txt.DeviceID,
			&txt.Payload,
			&txt.Timestamp,
			&txt.AttemptsLeft,
			&txt.ContextData,
		)
		if err != nil {
			if err != sql.ErrNoRows {
				rlog.Errorln("failed to retrieve task:", err.Error())
			}
			txt.tx.Rollback()
			txt.tx = nil
		}
		return
	}

	tasks := make(chan txTask, s.pipelineConcurrency)
	ready := make(chan bool, s.pipelineConcurrency)
	for i := 0; i < s.pipelineConcurrency; i++ {
		go s.pipelineWorker(i, tasks, ready)
	}

	var maxedOut bool

	var taskCount, readyCount int
	for i := 0; i < s.pipelineConcurrency; i++ {
		txt, err := getTask()
		if err != nil {
			break
		}
		taskCount++
		tasks <- txt
	}

	for readyCount < taskCount {
		<-ready
		readyCount++

		if maxedOut = max > 0 && time.Now().Sub(startTime) >= max; !maxedOut {
			// we have time for more tasks, check if there are any in the database
			txt, err := getTask()
			if err != nil {
				break
			}
			taskCount++
			tasks <- txt
		}
	}

	maxedOutString := ""
	if maxedOut {
		maxedOutString = " (maxed out)"
	}
	rlog.Debugf("process tasks: %d done%s", taskCount, maxedOutString)
	return maxedOut
}

// TaskDetail is detail on a task for the health endpoint
type TaskDetail struct {
	Serial       int64      `json:"serial"`
	Queue        string     `json:"queue"`
	Key          string     `json:"key"`
	DeviceID     string     `json:"device_id"`
	AttemptsLeft int64      `json:"attempts_left"`
	Timestamp    time.Time  `json:"timestamp"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	Failure      string     `json:"failure,omitempty"`
}

// Health contains the service's health status
type Health struct {
	Tasks struct {
		Failed  int64        `json:"failed"`
		Failing int64        `json:"failing"`
		Overdue int64        `json:"overdue"`
		Details []TaskDetail `json:"details,omitempty"`
	} `json:"tasks"`
}

// Health returns the service's health status
func (s *Service) Health(includeDetails bool) (Health, error) {
	health := Health{}
	tasks := &health.Tasks

	deadLetterQueue := s.queueConfig.DeadLetterQueue

	// get the number of tasks on the dead letter queue
	failedTasksQuery := `SELECT count(*) OVER()  from ` + s.db.Schema + `._task_ WHERE queue = '` + deadLetterQueue + `' limit 1;`
	err := s.db.QueryRow(failedTasksQuery).Scan(&tasks.Failed)
	if err != nil && err != csql.ErrNoRows {
		return health, err
	}

	// get the number of tasks who failed at least once but are still scheduled for a retry
	failingTasksQuery := `SELECT count(*) OVER()  from ` + s.db.Schema + `._task_ WHERE queue <> '` + deadLetterQueue + `' AND attempts_left > 0 AND attempts_left < $1 limit 1;`
	err = s.db.QueryRow(failingTasksQuery, s.queueConfig.MaxAttempts-1).Scan(&tasks.Failing)
	if err != nil && err != csql.ErrNoRows {
		return health, err
	}

	now := time.Now().UTC()
	tenMinutesAgo := now.Add(-10 * time.Minute)

	// get the number of tasks who should have been executed at least ten minutes ago
	overdueTasksQuery := `SELECT count(*) OVER()  from ` + s.db.Schema + `._task_ WHERE queue <> '` + deadLetterQueue + `' AND attempts_left > 0 AND
	((scheduled_at IS NULL AND $1 > timestamp) OR (scheduled_at IS NOT NULL AND $1 > scheduled_at)) limit 1;`
	err = s.db.QueryRow(overdueTasksQuery, tenMinutesAgo).Scan(&tasks.Overdue)
	if err != nil && err != csql.ErrNoRows {
		return health, err
	}

	if includeDetails {
		tasksDetailsQuery := `SELECT serial, queue, key, device_id, timestamp, attempts_left, scheduled_at, failure from ` + s.db.Schema + `._task_ WHERE
	queue = '` + deadLetterQueue + `' OR (attempts_left > 0 AND ((scheduled_at IS NULL AND $1 > timestamp) OR (scheduled_at IS NOT NULL AND $1 > scheduled_at)));`
		rows, err := s.db.Query(tasksDetailsQuery, tenMinutesAgo)
		if err != nil {
			if err == csql.ErrNoRows {
				return health, nil
			}
			return health, err
		}

		defer rows.Close()
		var taskDetails []TaskDetail
		for rows.Next() {
			var detail TaskDetail
			err := rows.Scan(
				&detail.Serial,
				&detail.Queue,
				&detail.Key,
				&detail.DeviceID,
				&detail.Timestamp,
				&detail.AttemptsLeft,
				&detail.ScheduledAt,
				&detail.Failure,
			)
			if err != nil {
				return health, err
			}
			taskDetails = append(taskDetails, detail)
		}
		health.Tasks.Details = taskDetails
	}
	return health, nil
}

func (s *Service) health(w http.ResponseWriter, r *http.Request, includeDetails bool) {
	rlog := logger.FromContext(r.Context())
	health, err := s.Health(includeDetails)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4222: cannot query database")
		http.Error(w, "Error 4222: ", http.StatusInternalServerError)
		return
	}
	jsonData, _ := json.Marshal(health)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}

// DeadLetter is a task that failed for good, together with the reason.
type DeadLetter struct {
	Serial    int             `json:"serial"`
	Key       string          `json:"key"`
	DeviceID  string          `json:"device_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Failure   string          `json:"failure"`
	FailedAt  *time.Time      `json:"failed_at"`
}

// DeadLetters returns all tasks on the dead letter queue.
func (s *Service) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	query := `SELECT serial, key, device_id, payload, timestamp, failure, failed_at FROM ` + s.db.Schema + `._task_
WHERE queue = '` + s.queueConfig.DeadLetterQueue + `' ORDER BY serial;`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deadLetters := []DeadLetter{}
	for rows.Next() {
		var deadLetter DeadLetter
		err := rows.Scan(
			&deadLetter.Serial,
			&deadLetter.Key,
			&deadLetter.DeviceID,
			&deadLetter.Payload,
			&deadLetter.Timestamp,
			&deadLetter.Failure,
			&deadLetter.FailedAt,
		)
		if err != nil {
			return nil, err
		}
		deadLetters = append(deadLetters, deadLetter)
	}
	return deadLetters, rows.Err()
}

// RequeueDeadLetter puts the dead letter with the given serial back onto the
// specified queue, with a fresh set of attempts. It returns false if there
// is no such dead letter.
func (s *Service) RequeueDeadLetter(ctx context.Context, serial int, queue string) (bool, error) {
	if _, ok := s.handlers[queue]; !ok {
		return false, fmt.Errorf("no task handler installed for queue %s", queue)
	}
	var requeued int
	err := s.db.QueryRowContext(ctx, s.tasksRequeueQuery, serial, queue, s.queueConfig.MaxAttempts).Scan(&requeued)
	if err == csql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.TriggerTasks()
	return true, nil
}

// PurgeDeadLetters deletes all tasks from the dead letter queue and returns
// how many it deleted.
func (s *Service) PurgeDeadLetters(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Schema+`._task_ WHERE queue = '`+s.queueConfig.DeadLetterQueue+`';`)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	return int(count), err
}

func (s *Service) deadLetters(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	deadLetters, err := s.DeadLetters(r.Context())
	if err != nil {
		rlog.WithError(err).Errorln("Error 4224: cannot query database")
		http.Error(w, "Error 4224: ", http.StatusInternalServerError)
		return
	}
	jsonData, _ := json.Marshal(deadLetters)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}

func (s *Service) requeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	params := mux.Vars(r)
	serial, err := strconv.Atoi(params["serial"])
	if err != nil {
		http.Error(w, "invalid serial", http.StatusBadRequest)
		return
	}
	requeued, err := s.RequeueDeadLetter(r.Context(), serial, taskQueueFirmwareEvents)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4225: cannot query database")
		http.Error(w, "Error 4225: ", http.StatusInternalServerError)
		return
	}
	if !requeued {
		http.Error(w, "no such dead letter", http.StatusNotFound)
		return
	}
	rlog.Infof("requeued dead letter #%d", serial)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) purgeDeadLetters(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	_, err := s.PurgeDeadLetters(r.Context())
	if err != nil {
		rlog.WithError(err).Errorln("Error 4223: cannot query database")
		http.Error(w, "Error 4223: ", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
