// Package forms holds one typed form per editable entity. Each form
// validates itself without side effects and reports Portuguese field
// messages.
package forms

import (
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"

	ptBR "github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ptBRTranslations "github.com/go-playground/validator/v10/translations/pt_BR"

	"github.com/pitabwire/maximiza/model"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag = "notblank"
	ufTag       = "uf"
	dateTag     = "date_ymd"
	senhaTag    = "senha"
)

// Estados maps every UF to its name.
var Estados = map[string]string{
	"AC": "Acre", "AL": "Alagoas", "AP": "Amapá", "AM": "Amazonas",
	"BA": "Bahia", "CE": "Ceará", "DF": "Distrito Federal", "ES": "Espírito Santo",
	"GO": "Goiás", "MA": "Maranhão", "MT": "Mato Grosso", "MS": "Mato Grosso do Sul",
	"MG": "Minas Gerais", "PA": "Pará", "PB": "Paraíba", "PR": "Paraná",
	"PE": "Pernambuco", "PI": "Piauí", "RJ": "Rio de Janeiro", "RN": "Rio Grande do Norte",
	"RS": "Rio Grande do Sul", "RO": "Rondônia", "RR": "Roraima", "SC": "Santa Catarina",
	"SP": "São Paulo", "SE": "Sergipe", "TO": "Tocantins",
}

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	loc := ptBR.New()
	uni := ut.New(loc, loc)
	translator, _ = uni.GetTranslator("pt_BR")
	_ = ptBRTranslations.RegisterDefaultTranslations(validate, translator)

	// Report JSON names so errors line up with the payload.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = validate.RegisterValidation(ufTag, ufValidation)
	_ = validate.RegisterValidation(dateTag, dateValidation)
	validate.RegisterStructValidation(usuarioStructValidation, UsuarioForm{})

	registerCustomTranslations(map[string]string{
		notBlankTag: "{0} não pode ficar em branco",
		ufTag:       "{0} deve ser uma UF válida",
		dateTag:     "{0} deve estar no formato AAAA-MM-DD",
		senhaTag:    "{0} deve ter no mínimo 6 caracteres",
	})
}

func registerCustomTranslations(texts map[string]string) {
	for tag, text := range texts {
		_ = validate.RegisterTranslation(tag, translator,
			func(t ut.Translator) error { return t.Add(tag, text, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(fe.Tag(), fe.Field())
				return s
			})
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func ufValidation(fl validator.FieldLevel) bool {
	_, ok := Estados[strings.ToUpper(fl.Field().String())]
	return ok
}

func dateValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

// check validates f and maps failures onto field errors. A message in
// messages, keyed by JSON field name, replaces the translated default.
func check(f any, messages map[string]string) []model.FieldError {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []model.FieldError{{Code: "INVALID", Message: err.Error()}}
	}
	out := make([]model.FieldError, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if seen[field] {
			continue
		}
		seen[field] = true
		msg, ok := messages[field]
		if !ok {
			msg = fe.Translate(translator)
		}
		out = append(out, model.FieldError{
			Field:   field,
			Code:    strings.ToUpper(fe.Tag()),
			Message: msg,
		})
	}
	return out
}

// digits strips everything but decimal digits.
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
