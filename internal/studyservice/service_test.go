package studyservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/storage"
	"github.com/starford/learnmate/internal/store"
	"github.com/starford/learnmate/internal/testutil"
	"github.com/starford/learnmate/internal/vectorindex"
)

type fixture struct {
	svc     *Service
	uploads string
	files   *storage.FS
	vectors *vectorindex.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.TestDB(t)
	dir, files := testutil.TestUploads(t)
	vectors := testutil.TestVectors(t)
	svc := New(db, files, vectors, WithLogger(testutil.Logger()), WithRand(rand.New(rand.NewPCG(1, 1))))
	return &fixture{svc: svc, uploads: dir, files: files, vectors: vectors}
}

func (f *fixture) index(t *testing.T, r *models.Resource) {
	t.Helper()
	err := f.vectors.Update(r.SubjectID, func(ix *vectorindex.Index) error {
		return ix.Add([]vectorindex.Entry{{
			Content:  r.Title,
			Metadata: map[string]any{vectorindex.MetaResourceID: r.ID},
		}}, [][]float32{{1, 0}})
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
}

func upload(name, body string) *Upload {
	return &Upload{Name: name, Body: strings.NewReader(body)}
}

func TestCreateSubject_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSubject(ctx, SubjectInput{Name: "   "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank name: err = %v", err)
	}
	s, err := f.svc.CreateSubject(ctx, SubjectInput{Name: " Algebra ", Description: "linear"})
	if err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	if s.Name != "Algebra" {
		t.Errorf("name = %q", s.Name)
	}

	upd, err := f.svc.UpdateSubject(ctx, s.ID, SubjectInput{Name: "Linear Algebra"})
	if err != nil {
		t.Fatalf("UpdateSubject: %v", err)
	}
	if upd.Name != "Linear Algebra" || upd.Description != "" {
		t.Errorf("updated = %+v", upd)
	}
	if _, err := f.svc.UpdateSubject(ctx, 999, SubjectInput{Name: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing subject: err = %v", err)
	}
}

func TestCreateResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Physics"})

	t.Run("book keeps file", func(t *testing.T) {
		r, err := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "Mechanics", Type: models.ResourceBook}, upload("mech.pdf", "pdf bytes"))
		if err != nil {
			t.Fatalf("CreateResource: %v", err)
		}
		if r.Status != models.StatusPending {
			t.Errorf("status = %s", r.Status)
		}
		if !strings.HasSuffix(r.FilePath, "_mech.pdf") {
			t.Errorf("file path = %q", r.FilePath)
		}
		data, err := os.ReadFile(filepath.Join(f.uploads, r.FilePath))
		if err != nil || string(data) != "pdf bytes" {
			t.Errorf("stored file = %q, %v", data, err)
		}
	})

	t.Run("link ignores file", func(t *testing.T) {
		r, err := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "Wiki", Type: models.ResourceLink, URL: "https://example.com/a"}, upload("x.txt", "x"))
		if err != nil {
			t.Fatalf("CreateResource: %v", err)
		}
		if r.FilePath != "" {
			t.Errorf("link stored file %q", r.FilePath)
		}
	})

	t.Run("validation", func(t *testing.T) {
		cases := []ResourceInput{
			{Title: "", Type: models.ResourceNote},
			{Title: "x", Type: "Video"},
			{Title: "x", Type: models.ResourceLink, URL: "not a url"},
		}
		for _, in := range cases {
			if _, err := f.svc.CreateResource(ctx, s.ID, in, nil); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("%+v: err = %v", in, err)
			}
		}
	})

	t.Run("unknown subject", func(t *testing.T) {
		_, err := f.svc.CreateResource(ctx, 404, ResourceInput{Title: "x", Type: models.ResourceNote, Notes: "n"}, upload("n.md", "n"))
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("err = %v", err)
		}
		files, _ := f.files.List("")
		for _, p := range files {
			if strings.HasSuffix(p, "_n.md") {
				t.Errorf("upload saved for unknown subject: %s", p)
			}
		}
	})
}

func TestOpenResourceFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Art"})
	r, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "Notes", Type: models.ResourceNote}, upload("art.md", "# Art"))

	_, rc, err := f.svc.OpenResourceFile(ctx, r.ID)
	if err != nil {
		t.Fatalf("OpenResourceFile: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "# Art" {
		t.Errorf("content = %q", data)
	}

	link, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "L", Type: models.ResourceLink}, nil)
	if _, _, err := f.svc.OpenResourceFile(ctx, link.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("no file: err = %v", err)
	}
}

func TestDeleteResource_RemovesFileAndChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Chem"})
	keep, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "keep", Type: models.ResourceNote, Notes: "a"}, nil)
	gone, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "gone", Type: models.ResourceBook}, upload("b.pdf", "b"))
	f.index(t, keep)
	f.index(t, gone)

	if err := f.svc.DeleteResource(ctx, gone.ID); err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, gone.FilePath)); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	ix, err := f.vectors.Load(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 || ix.Entries[0].Content != "keep" {
		t.Errorf("index entries = %+v", ix.Entries)
	}
	if err := f.svc.DeleteResource(ctx, gone.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestDeleteSubject_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Bio"})
	other, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Geo"})
	r, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "cells", Type: models.ResourceBook}, upload("cells.pdf", "c"))
	o, _ := f.svc.CreateResource(ctx, other.ID, ResourceInput{Title: "maps", Type: models.ResourceBook}, upload("maps.pdf", "m"))
	f.index(t, r)
	f.index(t, o)

	if err := f.svc.DeleteSubject(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSubject: %v", err)
	}
	if _, err := f.svc.GetSubject(ctx, s.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("subject still present: %v", err)
	}
	if _, err := f.svc.GetResource(ctx, r.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("resource still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, r.FilePath)); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if f.vectors.Exists(s.ID) {
		t.Error("index still present")
	}

	if !f.vectors.Exists(other.ID) {
		t.Error("other subject's index removed")
	}
	if _, err := os.Stat(filepath.Join(f.uploads, o.FilePath)); err != nil {
		t.Errorf("other subject's file removed: %v", err)
	}
	if err := f.svc.DeleteSubject(ctx, s.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestResetResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Math"})
	r, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "x", Type: models.ResourceNote, Notes: "n"}, nil)

	if _, err := f.svc.ResetResource(ctx, r.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("pending reset: err = %v", err)
	}
	if err := f.svc.db.SetResourceStatus(ctx, r.ID, models.StatusPending, models.StatusError, "boom"); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.ResetResource(ctx, r.ID)
	if err != nil {
		t.Fatalf("ResetResource: %v", err)
	}
	if got.Status != models.StatusPending || got.ErrorMessage != "" {
		t.Errorf("reset = %+v", got)
	}
}

func seedQuestions(t *testing.T, f *fixture, subjectID int64, n int) {
	t.Helper()
	e := &models.Exam{SubjectID: subjectID}
	for i := 0; i < n; i++ {
		e.Questions = append(e.Questions, models.Question{
			Text:    fmt.Sprintf("q%d", i),
			Answers: []models.Answer{{Text: "a"}, {Text: "b"}},
		})
	}
	if err := f.svc.db.CreateExam(context.Background(), e); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
}

func TestPracticeExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "History"})

	if _, err := f.svc.PracticeExam(ctx, s.ID, 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("no questions: err = %v", err)
	}
	seedQuestions(t, f, s.ID, 3)

	ex, err := f.svc.PracticeExam(ctx, s.ID, 5)
	if err != nil {
		t.Fatalf("PracticeExam: %v", err)
	}
	if len(ex.Questions) != 3 {
		t.Errorf("questions = %d, want 3", len(ex.Questions))
	}
	for _, q := range ex.Questions {
		if q.ExamID != ex.ID || len(q.Answers) != 2 {
			t.Errorf("question = %+v", q)
		}
	}

	exams, _ := f.svc.ListExams(ctx, s.ID)
	if len(exams) != 1 {
		t.Errorf("practice exam was stored: %d exams", len(exams))
	}
	if _, err := f.svc.PracticeExam(ctx, 999, 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing subject: err = %v", err)
	}
}

func TestExamQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Lit"})
	seedQuestions(t, f, s.ID, 2)

	exams, err := f.svc.ListExams(ctx, s.ID)
	if err != nil || len(exams) != 1 {
		t.Fatalf("ListExams = %v, %v", exams, err)
	}
	qs, err := f.svc.ListQuestions(ctx, exams[0].ID)
	if err != nil || len(qs) != 2 {
		t.Fatalf("ListQuestions = %v, %v", qs, err)
	}
	as, err := f.svc.ListAnswers(ctx, qs[0].ID)
	if err != nil || len(as) != 2 {
		t.Fatalf("ListAnswers = %v, %v", as, err)
	}
	if err := f.svc.DeleteExam(ctx, exams[0].ID); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if _, err := f.svc.GetExam(ctx, exams[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("exam still present: %v", err)
	}
	if _, err := f.svc.ListExams(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing subject: err = %v", err)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Music"})
	r, _ := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "score", Type: models.ResourceBook}, upload("score.pdf", "s"))
	f.index(t, r)

	orphan := &models.Resource{ID: 1, SubjectID: 77, Title: "orphan"}
	f.index(t, orphan)
	if err := f.files.Write("0b6c2a9e-3f1d-4c8e-9a57-2d4e6f8a1b3c_stray.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Indexes != 1 || res.Files != 1 {
		t.Errorf("result = %+v", res)
	}
	if f.vectors.Exists(77) {
		t.Error("orphan index kept")
	}
	if !f.vectors.Exists(s.ID) {
		t.Error("live index removed")
	}
	files, _ := f.files.List("")
	if len(files) != 1 || files[0] != r.FilePath {
		t.Errorf("files = %v", files)
	}
}

func TestReconcile_KeepsFilesNotSavedAsUploads(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := store.Open(filepath.Join(dir, "learnmate.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	vectors, err := vectorindex.NewStore(filepath.Join(dir, "vectorstores"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{svc: New(db, files, vectors, WithLogger(testutil.Logger())), uploads: dir, files: files, vectors: vectors}

	s, _ := f.svc.CreateSubject(ctx, SubjectInput{Name: "Physics"})
	r, err := f.svc.CreateResource(ctx, s.ID, ResourceInput{Title: "notes", Type: models.ResourceNote}, upload("notes.md", "n"))
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	f.index(t, r)
	if err := files.Write("README.txt", []byte("keep me")); err != nil {
		t.Fatal(err)
	}
	stray := "5f0e8d7c-1a2b-4c3d-8e9f-a0b1c2d3e4f5_old.pdf"
	if err := files.Write(stray, []byte("x")); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Files != 1 || res.Indexes != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, name := range []string{"learnmate.db", "README.txt", r.FilePath} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s removed: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, stray)); !os.IsNotExist(err) {
		t.Error("orphan upload kept")
	}
	vectors.Invalidate(s.ID)
	if !vectors.Exists(s.ID) {
		t.Error("index files removed")
	}
	if _, err := db.GetSubject(ctx, s.ID); err != nil {
		t.Errorf("database unusable after reconcile: %v", err)
	}
}
