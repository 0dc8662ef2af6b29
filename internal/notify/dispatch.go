package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Dispatcher передаёт письмо на отправку, не дожидаясь результата.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Email)
}

// AsyncDispatcher отправляет письмо в отдельной горутине.
type AsyncDispatcher struct {
	mailer  Mailer
	log     *slog.Logger
	timeout time.Duration
}

func NewAsyncDispatcher(mailer Mailer, log *slog.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{mailer: mailer, log: log, timeout: 10 * time.Second}
}

func (d *AsyncDispatcher) Dispatch(_ context.Context, e Email) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.mailer.Send(ctx, e); err != nil {
			d.log.Warn("Не удалось отправить письмо", "subject", e.Subject, "error", err)
		}
	}()
}

const TypeSendEmail = "email:send"

func NewSendEmailTask(e Email) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendEmail, payload, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskDispatcher ставит письмо в очередь asynq; отправляет его воркер.
type TaskDispatcher struct {
	client enqueuer
	log    *slog.Logger
}

func NewTaskDispatcher(client *asynq.Client, log *slog.Logger) *TaskDispatcher {
	return &TaskDispatcher{client: client, log: log}
}

func (d *TaskDispatcher) Dispatch(ctx context.Context, e Email) {
	task, err := NewSendEmailTask(e)
	if err != nil {
		d.log.Error("Не удалось сформировать задачу письма", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		d.log.Warn("Не удалось поставить письмо в очередь", "subject", e.Subject, "error", err)
		return
	}
	d.log.Debug("Письмо поставлено в очередь", "task_id", info.ID)
}

// HandleSendEmail — обработчик задачи email:send для воркера asynq.
func HandleSendEmail(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var e Email
		if err := json.Unmarshal(t.Payload(), &e); err != nil {
			return fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry)
		}
		err := mailer.Send(ctx, e)
		if errors.Is(err, ErrRejected) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

// Worker обрабатывает отложенные письма из Redis.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *slog.Logger
}

func NewWorker(redisOpt asynq.RedisConnOpt, mailer Mailer, log *slog.Logger) *Worker {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSendEmail, HandleSendEmail(mailer))
	return &Worker{srv: srv, mux: mux, log: log}
}

// Run блокируется до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	w.log.Info("Воркер писем запущен")
	<-ctx.Done()
	w.srv.Shutdown()
	w.log.Info("Воркер писем остановлен")
	return nil
}
