package main

import (
	"errors"
	"reflect"
	"strings"

	"github.com/campusbridge/portalguard/session"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

const (
	notBlankTag        = "notblank"
	registrableRoleTag = "registrable_role"
)

// requestValidator checks decoded request bodies and renders the first
// failure as a client-facing message.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New()

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(v, translator)

	// Report JSON field names instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, notBlankValidation)
	_ = v.RegisterValidation(registrableRoleTag, registrableRoleValidation)

	noop := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, registrableRoleTag} {
		_ = v.RegisterTranslation(tag, translator, noop, translateCustomErr)
	}

	return &requestValidator{validate: v, translator: translator}
}

// Check returns nil when body is valid, otherwise a one-line message naming
// the first offending field.
func (rv *requestValidator) Check(body any) error {
	err := rv.validate.Struct(body)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return errors.New(fieldErrs[0].Translate(rv.translator))
	}
	return err
}

func translateCustomErr(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	case registrableRoleTag:
		return "invalid " + fe.Field()
	default:
		return fe.Error()
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func registrableRoleValidation(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	return ok && registrable[session.Role(s)]
}
