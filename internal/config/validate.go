package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("config: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	// Report fields by the key used in the config file.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})
}

// Validate checks cfg against its declared tags.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	fields := make(FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, FieldError{
			Field: strings.TrimPrefix(verror.Namespace(), "Config."),
			Err:   customErrForTag(verror.Tag(), verror),
		})
	}

	return fields
}

// FieldError is a single invalid setting.
type FieldError struct {
	Field string
	Err   string
}

// FieldErrors collects every invalid setting of a Config.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

// Fields maps each invalid setting to its message.
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string, len(fe))
	for _, f := range fe {
		m[f.Field] = f.Err
	}
	return m
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "This setting is required"
	default:
		return verror.Translate(translator)
	}
}
