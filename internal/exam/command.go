package exam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/learnmate/internal/apperr"
)

// DateLayout is the accepted exam date format.
const DateLayout = "2006-01-02"

// Command asks for one PDF to be turned into a stored exam.
type Command struct {
	PDFPath   string `json:"pdf_path"`
	SubjectID int64  `json:"subject_id"`
	Date      string `json:"date"`
}

// Validate checks the command without touching any external service.
// Errors wrap apperr.ErrValidation.
func (c Command) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.PDFPath, validation.Required, validation.By(pdfExtension), validation.By(fileExists)),
		validation.Field(&c.SubjectID, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.Date, validation.Required, validation.Date(DateLayout).Error("must be a date in YYYY-MM-DD format")),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

func pdfExtension(v any) error {
	p, _ := v.(string)
	if ext := filepath.Ext(p); !strings.EqualFold(ext, ".pdf") {
		return fmt.Errorf("file must be a PDF, got %q", ext)
	}
	return nil
}

func fileExists(v any) error {
	p, _ := v.(string)
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return errors.New("file not found")
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("path is a directory")
	}
	return nil
}
