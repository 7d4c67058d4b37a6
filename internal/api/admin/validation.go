package admin

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/radiowave/station-backend/internal/db/models"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding rules used by request bodies in
// this package on gin's validator. It is safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
			return
		}
		err = v.RegisterValidation("category_kind", validateCategoryKind)
	})
	return err
}

func validateCategoryKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case models.CategoryKindNews, models.CategoryKindPodcast:
		return true
	}
	return false
}
