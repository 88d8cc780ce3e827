// Package flow turns discrete UI intents into single Store calls. It only
// rejects obviously invalid input locally so it never costs a round-trip.
package flow

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"smartpdf-web/internal/session"

	"github.com/go-playground/validator/v10"
)

type fileInput struct {
	Name        string `validate:"required"`
	ContentType string `validate:"omitempty,pdfcontent"`
	Data        []byte `validate:"required,min=1"`
}

type chooseFilesInput struct {
	Files []fileInput `validate:"required,min=1,dive"`
}

type queryInput struct {
	Query string `validate:"required,notblank"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("pdfcontent", func(fl validator.FieldLevel) bool {
		ct := strings.ToLower(fl.Field().String())
		// Browsers send octet-stream for files they cannot type.
		return strings.HasPrefix(ct, "application/pdf") || ct == "application/octet-stream"
	})
	return v
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// precondition maps a validation failure onto the local guard error class.
func precondition(err error, fallback *session.PreconditionError) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fallback
	}

	fe := verrs[0]
	if fe.Tag() == "pdfcontent" {
		return fmt.Errorf("%w: %s", session.ErrNotPDF, fe.Namespace())
	}
	if fe.Field() == "Files" || fe.Field() == "Query" {
		return fallback
	}
	return &session.PreconditionError{Reason: fmt.Sprintf("%s is invalid (%s)", fe.Namespace(), fe.Tag())}
}
