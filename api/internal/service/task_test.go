package service

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"commentary/api/internal/database"
	"commentary/api/internal/models"
)

type fakeStorage struct {
	objects    map[string][]byte
	presigned  []string
	presignErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) PutObject(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) DeletePrefix(_ context.Context, _ string) error { return nil }

func (f *fakeStorage) PresignedGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	f.presigned = append(f.presigned, key)
	return "https://storage.example/" + key, nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStorage) UploadFile(_ context.Context, key, _ string, _ string) error {
	f.objects[key] = nil
	return nil
}

func (f *fakeStorage) DownloadFile(_ context.Context, _, _ string) error { return nil }

type fakeOrchestrator struct {
	started   []uuid.UUID
	cleaned   []uuid.UUID
	cancelErr error
}

func (f *fakeOrchestrator) StartTask(_ context.Context, task *models.Task) error {
	f.started = append(f.started, task.ID)
	task.Status = models.TaskStatusQueued
	return nil
}

func (f *fakeOrchestrator) CancelTask(_ context.Context, taskID uuid.UUID) error {
	return f.cancelErr
}

func (f *fakeOrchestrator) CleanupTask(_ context.Context, taskID uuid.UUID) error {
	f.cleaned = append(f.cleaned, taskID)
	return nil
}

func newTestService(t *testing.T) (*TaskService, sqlmock.Sqlmock, *fakeStorage, *fakeOrchestrator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := newFakeStorage()
	orch := &fakeOrchestrator{}
	return NewTaskService(&database.DB{DB: db}, store, orch), mock, store, orch
}

func taskColumns() []string {
	return []string{
		"id", "status", "progress", "pipeline_state", "state_message", "error",
		"script_key", "source_video_key", "bgm_key",
		"voice", "rate", "pitch", "best_effort",
		"result_video_key", "result_subtitle_key", "created_at", "updated_at",
	}
}

func taskRow(taskID uuid.UUID, status models.TaskStatus, videoKey, subtitleKey interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(taskColumns()).AddRow(
		taskID, status, 100.0, "COMPLETE", nil, nil,
		"tasks/"+taskID.String()+"/script.json", "tasks/"+taskID.String()+"/source.mp4", nil,
		nil, nil, nil, false,
		videoKey, subtitleKey, now, now,
	)
}

func expectSteps(mock sqlmock.Sqlmock, taskID uuid.UUID) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM task_steps")).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "task_id", "step", "status", "attempt",
			"started_at", "ended_at", "error", "metrics_json", "created_at", "updated_at",
		}))
}

func TestGetTaskWithStepsNotFound(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	taskID := uuid.New()

	mock.ExpectQuery("FROM tasks WHERE id").
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows(taskColumns()))

	_, _, err := svc.GetTaskWithSteps(context.Background(), taskID)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetDownloadURLVideo(t *testing.T) {
	svc, mock, store, _ := newTestService(t)
	taskID := uuid.New()
	videoKey := "tasks/" + taskID.String() + "/combined.mp4"

	mock.ExpectQuery("FROM tasks WHERE id").
		WithArgs(taskID).
		WillReturnRows(taskRow(taskID, models.TaskStatusComplete, videoKey, nil))
	expectSteps(mock, taskID)

	url, err := svc.GetDownloadURL(context.Background(), taskID, "video")
	if err != nil {
		t.Fatalf("GetDownloadURL failed: %v", err)
	}
	if url != "https://storage.example/"+videoKey {
		t.Errorf("url = %s", url)
	}
	if len(store.presigned) != 1 || store.presigned[0] != videoKey {
		t.Errorf("presigned keys = %v", store.presigned)
	}
}

func TestGetDownloadURLSubtitleMissing(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	taskID := uuid.New()

	mock.ExpectQuery("FROM tasks WHERE id").
		WithArgs(taskID).
		WillReturnRows(taskRow(taskID, models.TaskStatusComplete, "tasks/v.mp4", nil))
	expectSteps(mock, taskID)

	_, err := svc.GetDownloadURL(context.Background(), taskID, "subtitle")
	if !errors.Is(err, ErrTaskNotCompleted) {
		t.Fatalf("err = %v, want ErrTaskNotCompleted", err)
	}
}

func TestGetTaskResultRequiresCompletion(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	taskID := uuid.New()

	mock.ExpectQuery("FROM tasks WHERE id").
		WithArgs(taskID).
		WillReturnRows(taskRow(taskID, models.TaskStatusRendering, nil, nil))
	expectSteps(mock, taskID)

	_, err := svc.GetTaskResult(context.Background(), taskID)
	if !errors.Is(err, ErrTaskNotCompleted) {
		t.Fatalf("err = %v, want ErrTaskNotCompleted", err)
	}
}

func TestDeleteTaskDispatchesCleanup(t *testing.T) {
	svc, mock, _, orch := newTestService(t)
	taskID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)")).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tasks WHERE id = $1")).
		WithArgs(taskID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.DeleteTask(context.Background(), taskID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if len(orch.cleaned) != 1 || orch.cleaned[0] != taskID {
		t.Errorf("cleanup dispatched for %v, want %s", orch.cleaned, taskID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	svc, mock, _, orch := newTestService(t)
	taskID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)")).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if err := svc.DeleteTask(context.Background(), taskID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
	if len(orch.cleaned) != 0 {
		t.Errorf("no cleanup expected, got %v", orch.cleaned)
	}
}
