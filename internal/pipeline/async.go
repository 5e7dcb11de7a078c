package pipeline

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/task"
)

// EnqueueUpload stages the document on disk, registers a task and queues the
// background extraction. A live task already covering the same case is
// returned as-is so client retries coalesce instead of double-processing.
// The returned snapshot is in state queued; callers poll for the rest.
func (s *Service) EnqueueUpload(ctx context.Context, req UploadRequest) (model.Task, error) {
	if err := s.validator.CheckUpload(req.Filename, req.ContentType, req.Size); err != nil {
		return model.Task{}, err
	}
	caseID, err := resolveCaseID(req.CaseID)
	if err != nil {
		return model.Task{}, err
	}

	t, created := s.registry.Create(caseID)
	if !created {
		zap.L().Info("pipeline: coalescing duplicate upload",
			zap.String("case_id", caseID),
			zap.String("task_id", t.ID))
		return t, nil
	}

	path, err := s.temp.Acquire(req.Filename, req.Body)
	if err != nil {
		s.registry.Delete(t.ID)
		return model.Task{}, err
	}

	s.mu.Lock()
	s.staged[t.ID] = stagedUpload{caseID: caseID, filename: req.Filename, path: path}
	s.mu.Unlock()

	if err := s.queue.TryEnqueue(task.Job{TaskID: t.ID}); err != nil {
		s.releaseStaged(t.ID)
		s.registry.Delete(t.ID)
		if errors.Is(err, task.ErrQueueFull) {
			return model.Task{}, model.WrapError(err, model.ErrKindUpload, "task queue is full, retry shortly")
		}
		return model.Task{}, model.WrapError(err, model.ErrKindUpload, "could not queue the extraction")
	}

	zap.L().Info("pipeline: upload queued",
		zap.String("case_id", caseID),
		zap.String("task_id", t.ID))
	return t, nil
}

// RunTask executes the background half of the asynchronous flow, walking the
// task through its progress checkpoints. The staged file is released exactly
// once whatever the outcome.
func (s *Service) RunTask(ctx context.Context, taskID string) error {
	up, ok := s.stagedFor(taskID)
	if !ok {
		err := model.NewError(model.ErrKindUpload, "staged document for task is missing")
		s.failTask(taskID, err)
		return err
	}
	defer s.releaseStaged(taskID)

	log := zap.L().With(zap.String("task_id", taskID), zap.String("case_id", up.caseID))

	if err := s.registry.SetState(taskID, model.TaskStateUploading, 10, "preparing document"); err != nil {
		return eris.Wrap(err, "pipeline: advance task")
	}

	// Idempotent replay: a case persisted earlier completes without reading
	// the document or calling the model.
	stored, err := s.storedCase(ctx, up.caseID)
	if err != nil {
		s.failTask(taskID, err)
		return err
	}
	if stored != nil {
		log.Info("pipeline: case already persisted, completing without extraction")
		return s.registry.Complete(taskID, stored)
	}

	data, err := os.ReadFile(up.path)
	if err != nil {
		werr := model.WrapError(err, model.ErrKindUpload, "reading staged document failed")
		s.failTask(taskID, werr)
		return werr
	}

	if err := s.registry.SetState(taskID, model.TaskStateUploading, 30, "document staged"); err != nil {
		return eris.Wrap(err, "pipeline: advance task")
	}

	pages, err := s.validator.CheckContent(data)
	if err != nil {
		s.failTask(taskID, err)
		return err
	}

	if err := s.registry.SetState(taskID, model.TaskStateProcessing, 50, "extracting structured data"); err != nil {
		return eris.Wrap(err, "pipeline: advance task")
	}

	rec, err := s.extractAndPersist(ctx, up.caseID, up.filename, data, pages)
	if err != nil {
		s.failTask(taskID, err)
		return err
	}

	log.Info("pipeline: task complete",
		zap.Int("pages", pages),
		zap.Int("events", len(rec.Timeline)),
		zap.Int("evidence", len(rec.Evidence)))
	return s.registry.Complete(taskID, rec)
}

// failTask records the classified failure on the task. A task already in a
// terminal state only gets a log line.
func (s *Service) failTask(taskID string, cause error) {
	if err := s.registry.Fail(taskID, model.KindOf(cause), model.ClientMessage(cause)); err != nil {
		zap.L().Warn("pipeline: could not record task failure",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// stagedFor looks up the staged document for a task.
func (s *Service) stagedFor(taskID string) (stagedUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.staged[taskID]
	return up, ok
}

// releaseStaged drops the task's staging entry and deletes the temp file.
// The entry is removed under the lock, so a second call is a no-op.
func (s *Service) releaseStaged(taskID string) {
	s.mu.Lock()
	up, ok := s.staged[taskID]
	delete(s.staged, taskID)
	s.mu.Unlock()
	if ok {
		s.temp.Release(up.path)
	}
}
