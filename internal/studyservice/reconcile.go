package studyservice

import (
	"context"
	"log/slog"

	"github.com/starford/learnmate/internal/storage"
)

// ReconcileResult counts what Reconcile removed.
type ReconcileResult struct {
	Indexes int
	Files   int
}

// Reconcile removes index directories of subjects and uploaded files of
// resources that no longer exist in the relational store. Only files named
// the way uploads are saved are considered.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	subjects, err := s.db.SubjectIDs(ctx)
	if err != nil {
		return res, err
	}
	indexed, err := s.vectors.Subjects()
	if err != nil {
		return res, err
	}
	for _, id := range indexed {
		if _, ok := subjects[id]; ok {
			continue
		}
		if err := s.vectors.Drop(id); err != nil {
			s.logger.Warn("reconcile: drop index failed", slog.Int64("subject_id", id), slog.String("error", err.Error()))
			continue
		}
		res.Indexes++
	}

	referenced, err := s.db.FilePaths(ctx)
	if err != nil {
		return res, err
	}
	files, err := s.files.List("")
	if err != nil {
		return res, err
	}
	for _, p := range files {
		if !storage.IsSavedName(p) {
			continue
		}
		if _, ok := referenced[p]; ok {
			continue
		}
		if err := s.files.Delete(p); err != nil {
			s.logger.Warn("reconcile: delete file failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("reconcile: removed orphan file", slog.String("path", p))
		res.Files++
	}

	s.logger.Info("reconcile done", slog.Int("indexes", res.Indexes), slog.Int("files", res.Files))
	return res, nil
}
