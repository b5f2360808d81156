package registration

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

// Field names a draft field. The values match the JSON keys the browser
// form posts, so field errors can be shown next to the right input.
type Field string

const (
	FieldEmail            Field = "email"
	FieldPassword         Field = "password"
	FieldConfirmPassword  Field = "confirmPassword"
	FieldName             Field = "name"
	FieldDOB              Field = "dob"
	FieldGender           Field = "gender"
	FieldPhoneNumber      Field = "phoneNumber"
	FieldIDCardNumber     Field = "idCardNumber"
	FieldCity             Field = "city"
	FieldDistrict         Field = "district"
	FieldWard             Field = "ward"
	FieldAddressLine      Field = "addressLine"
	FieldCountry          Field = "country"
	FieldSchoolName       Field = "schoolName"
	FieldProgramName      Field = "programName"
	FieldDegreeType       Field = "degreeType"
	FieldCertificateType  Field = "certificateType"
	FieldCertificateImage Field = "certificateImg"
	FieldGradeType        Field = "gradeType"
	FieldGradeScore       Field = "gradeScore"
)

// Tab is a page of the registration form. Switching tabs never changes
// the draft.
type Tab string

const (
	TabAccount   Tab = "account"
	TabProfile   Tab = "profile"
	TabEducation Tab = "education"
)

// Tabs lists the tabs in display order.
var Tabs = []Tab{TabAccount, TabProfile, TabEducation}

type kind int

const (
	kindText kind = iota
	kindDate
	kindEnum
	kindURL
)

// binding describes how a raw input value is parsed for one field and on
// which tab the field is shown.
type binding struct {
	kind    kind
	tab     Tab
	allowed []string // kindEnum only
}

var bindings = map[Field]binding{
	FieldEmail:           {kind: kindText, tab: TabAccount},
	FieldPassword:        {kind: kindText, tab: TabAccount},
	FieldConfirmPassword: {kind: kindText, tab: TabAccount},

	FieldName:         {kind: kindText, tab: TabProfile},
	FieldDOB:          {kind: kindDate, tab: TabProfile},
	FieldGender:       {kind: kindEnum, tab: TabProfile, allowed: []string{"MALE", "FEMALE", "OTHER"}},
	FieldPhoneNumber:  {kind: kindText, tab: TabProfile},
	FieldIDCardNumber: {kind: kindText, tab: TabProfile},
	FieldCity:         {kind: kindText, tab: TabProfile},
	FieldDistrict:     {kind: kindText, tab: TabProfile},
	FieldWard:         {kind: kindText, tab: TabProfile},
	FieldAddressLine:  {kind: kindText, tab: TabProfile},

	FieldCountry:          {kind: kindText, tab: TabEducation},
	FieldSchoolName:       {kind: kindText, tab: TabEducation},
	FieldProgramName:      {kind: kindText, tab: TabEducation},
	FieldDegreeType:       {kind: kindEnum, tab: TabEducation, allowed: []string{"HIGHSCHOOL", "BACHELOR", "MASTER"}},
	FieldCertificateType:  {kind: kindEnum, tab: TabEducation, allowed: []string{"IELTS", "TOEFL", "TOEIC", "SAT", "NONE"}},
	FieldCertificateImage: {kind: kindURL, tab: TabEducation},
	FieldGradeType:        {kind: kindEnum, tab: TabEducation, allowed: []string{"GPA", "CGPA", "PERCENTAGE"}},
	FieldGradeScore:       {kind: kindText, tab: TabEducation},
}

// TabOf returns the tab a field is shown on.
func TabOf(f Field) (Tab, bool) {
	b, ok := bindings[f]
	return b.tab, ok
}

// dateLayouts are tried in order when parsing a date of birth.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// parse checks raw against the field's kind. For dates the parsed time is
// returned as well.
func (b binding) parse(f Field, raw string) (time.Time, error) {
	switch b.kind {
	case kindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("field %s: %q is not a date", f, raw)
	case kindEnum:
		for _, v := range b.allowed {
			if raw == v {
				return time.Time{}, nil
			}
		}
		return time.Time{}, fmt.Errorf("field %s: %q is not one of %s", f, raw, strings.Join(b.allowed, ", "))
	case kindURL:
		// empty clears the uploaded image
		if raw == "" {
			return time.Time{}, nil
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return time.Time{}, fmt.Errorf("field %s: %w", f, err)
		}
	}
	return time.Time{}, nil
}

// assign writes an already parsed value into the draft.
func assign(d *types.RegistrationDraft, f Field, raw string, date time.Time) {
	switch f {
	case FieldEmail:
		d.Email = strings.TrimSpace(raw)
	case FieldPassword:
		d.Password = raw
	case FieldConfirmPassword:
		d.ConfirmPassword = raw
	case FieldName:
		d.Name = raw
	case FieldDOB:
		d.DOB = date
	case FieldGender:
		d.Gender = types.Gender(raw)
	case FieldPhoneNumber:
		d.PhoneNumber = strings.TrimSpace(raw)
	case FieldIDCardNumber:
		d.IDCardNumber = strings.TrimSpace(raw)
	case FieldCity:
		d.City = raw
	case FieldDistrict:
		d.District = raw
	case FieldWard:
		d.Ward = raw
	case FieldAddressLine:
		d.AddressLine = raw
	case FieldCountry:
		d.Country = raw
	case FieldSchoolName:
		d.SchoolName = raw
	case FieldProgramName:
		d.ProgramName = raw
	case FieldDegreeType:
		d.DegreeType = types.DegreeType(raw)
	case FieldCertificateType:
		d.CertificateType = types.CertificateType(raw)
	case FieldCertificateImage:
		d.CertificateImage = raw
	case FieldGradeType:
		d.GradeType = types.GradeType(raw)
	case FieldGradeScore:
		d.GradeScore = strings.TrimSpace(raw)
	}
}
