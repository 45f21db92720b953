package voicemail

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// CallbackPayload is the form-encoded body Twilio posts when a recording
// completes. Field names match the provider's parameter names.
type CallbackPayload struct {
	AccountSid        string `form:"AccountSid" validate:"required,account_sid"`
	CallSid           string `form:"CallSid" validate:"required,call_sid"`
	RecordingSid      string `form:"RecordingSid" validate:"required"`
	RecordingURL      string `form:"RecordingUrl" validate:"required,url"`
	RecordingStatus   string `form:"RecordingStatus" validate:"required,eq=completed"`
	RecordingDuration string `form:"RecordingDuration" validate:"required,numeric"`
	RecordingChannels string `form:"RecordingChannels" validate:"required,numeric"`
	RecordingSource   string `form:"RecordingSource" validate:"required,eq=RecordVerb"`
}

var (
	accountSidPattern = regexp.MustCompile(`^AC[0-9a-fA-F]{32}$`)
	callSidPattern    = regexp.MustCompile(`^CA[0-9a-fA-F]{32}$`)
)

// PayloadValidator validates ingestion callbacks and translates every
// failing field into a readable message. No partial acceptance: any
// violation rejects the whole payload.
type PayloadValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewPayloadValidator() *PayloadValidator {
	validate := validator.New()

	// Report the wire parameter names, not Go field names.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := field.Tag.Get("form")
		if tag == "" || tag == "-" {
			return field.Name
		}
		return strings.SplitN(tag, ",", 2)[0]
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic("failed to register validator default translations: " + err.Error())
	}

	mustRegisterPattern(validate, trans, "account_sid", accountSidPattern,
		"{0} must be AC followed by 32 hex characters")
	mustRegisterPattern(validate, trans, "call_sid", callSidPattern,
		"{0} must be CA followed by 32 hex characters")

	return &PayloadValidator{
		validate:   validate,
		translator: trans,
	}
}

func mustRegisterPattern(v *validator.Validate, trans ut.Translator, tag string, pattern *regexp.Regexp, message string) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic("failed to register validation " + tag + ": " + err.Error())
	}

	err = v.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, message, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, terr := ut.T(tag, fe.Field())
		if terr != nil {
			return fe.Field() + " is invalid"
		}
		return t
	})
	if err != nil {
		panic("failed to register translation " + tag + ": " + err.Error())
	}
}

// Validate checks the payload and returns a *ValidationError listing
// every failing field, or nil.
func (pv *PayloadValidator) Validate(payload CallbackPayload) error {
	err := pv.validate.Struct(payload)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	ve := &ValidationError{}
	for _, fe := range validationErrors {
		ve.Problems = append(ve.Problems, fe.Translate(pv.translator))
	}
	return ve
}

// ValidationError lists every failing payload field in struct order.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
