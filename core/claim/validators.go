package claim

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/sautiplus/backoffice/core"
)

var (
	subjectTypeTag  = "subjecttype"
	subjectTypeText = "{0} must be one of artist, song or album"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(subjectTypeTag, subjectTypeValidation)
	core.RegisterCustomTranslation(validate, translator, subjectTypeTag, subjectTypeText)
}

func subjectTypeValidation(fl validator.FieldLevel) bool {
	kind := fl.Field().String()
	for _, k := range AllKinds {
		if kind == k {
			return true
		}
	}
	return false
}
