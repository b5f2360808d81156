package registration

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

// Custom tags reported by the draft's struct-level rules.
const (
	tagGradeRange      = "graderange"
	tagCertificateImg  = "certificateimg"
	tagSchoolInCountry = "schoolincountry"
	tagProgramInSchool = "programinschool"
)

// FieldErrors maps each invalid field to a human-readable message.
// Only the first failing rule per field is kept.
type FieldErrors map[Field]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fe[Field(f)])
	}
	return strings.Join(msgs, ", ")
}

// ForTab returns the errors of the fields shown on tab.
func (fe FieldErrors) ForTab(tab Tab) FieldErrors {
	out := FieldErrors{}
	for f, msg := range fe {
		if t, _ := TabOf(f); t == tab {
			out[f] = msg
		}
	}
	return out
}

// ByTab groups the errors per tab. Tabs without errors are omitted.
func (fe FieldErrors) ByTab() map[Tab]FieldErrors {
	out := make(map[Tab]FieldErrors)
	for _, tab := range Tabs {
		if errs := fe.ForTab(tab); len(errs) > 0 {
			out[tab] = errs
		}
	}
	return out
}

// ValidatedDraft is a draft that passed every rule, with its grade score
// already parsed.
type ValidatedDraft struct {
	Draft types.RegistrationDraft
	Score float64
}

// Validator checks drafts against the field tags on types.RegistrationDraft
// plus the catalog-dependent rules. It is safe for concurrent use; the
// underlying validator caches struct metadata, so build one per catalog.
type Validator struct {
	validate *validator.Validate
	catalog  types.SchoolCatalog
}

func NewValidator(catalog types.SchoolCatalog) *Validator {
	v := &Validator{
		validate: validator.New(),
		catalog:  catalog,
	}

	// Report JSON names ("gradeScore") instead of Go names ("GradeScore")
	// so errors line up with the form inputs.
	v.validate.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.validate.RegisterStructValidation(v.draftRules, types.RegistrationDraft{})

	return v
}

// draftRules are the cross-field invariants of a draft.
func (v *Validator) draftRules(sl validator.StructLevel) {
	d := sl.Current().Interface().(types.RegistrationDraft)

	if lo, hi, ok := d.GradeType.Range(); ok {
		// an unparsable score is already reported by the numeric tag
		if score, err := strconv.ParseFloat(d.GradeScore, 64); err == nil && (score < lo || score > hi) {
			sl.ReportError(d.GradeScore, string(FieldGradeScore), "GradeScore", tagGradeRange,
				fmt.Sprintf("%g and %g", lo, hi))
		}
	}

	if d.CertificateType.NeedsUpload() && d.CertificateImage == "" {
		sl.ReportError(d.CertificateImage, string(FieldCertificateImage), "CertificateImage", tagCertificateImg,
			string(d.CertificateType))
	}

	if d.SchoolName == "" || d.Country == "" {
		return
	}
	school, ok := v.catalog.Find(d.SchoolName)
	if !ok || school.Country != d.Country {
		sl.ReportError(d.SchoolName, string(FieldSchoolName), "SchoolName", tagSchoolInCountry, d.Country)
		return
	}
	if d.ProgramName != "" && !school.HasProgram(d.ProgramName) {
		sl.ReportError(d.ProgramName, string(FieldProgramName), "ProgramName", tagProgramInSchool, d.SchoolName)
	}
}

// Validate applies every rule to d. On success the returned FieldErrors
// is nil.
func (v *Validator) Validate(d types.RegistrationDraft) (ValidatedDraft, FieldErrors) {
	if err := v.validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			// only returned for non-struct input, which cannot happen here
			return ValidatedDraft{}, FieldErrors{"": err.Error()}
		}

		out := FieldErrors{}
		for _, fe := range verrs {
			f := Field(fe.Field())
			if _, seen := out[f]; !seen {
				out[f] = messageFor(fe)
			}
		}
		return ValidatedDraft{}, out
	}

	score, _ := strconv.ParseFloat(d.GradeScore, 64)
	return ValidatedDraft{Draft: d, Score: score}, nil
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %s is required", fe.Field())
	case "email":
		return fmt.Sprintf("field %s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("field %s must be at least %s characters", fe.Field(), fe.Param())
	case "eqfield":
		return "passwords do not match"
	case "oneof":
		return fmt.Sprintf("field %s must be one of: %s", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("field %s must be a valid URL", fe.Field())
	case "number", "numeric", "e164|number":
		return fmt.Sprintf("field %s must be a number", fe.Field())
	case tagGradeRange:
		return fmt.Sprintf("field %s must be between %s", fe.Field(), fe.Param())
	case tagCertificateImg:
		return fmt.Sprintf("an image of the %s certificate is required", fe.Param())
	case tagSchoolInCountry:
		return fmt.Sprintf("school is not offered in %s", fe.Param())
	case tagProgramInSchool:
		return fmt.Sprintf("program is not offered by %s", fe.Param())
	default:
		return fmt.Sprintf("field %s is invalid", fe.Field())
	}
}
