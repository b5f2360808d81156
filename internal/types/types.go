// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// registration, chat, storage and the HTTP handlers can all import types
// without depending on each other.
package types

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
//
// Every enum is a named string type. The string values are the exact
// values the browser app sends, so JSON needs no custom marshalling.
// The validate:"oneof=..." tags on RegistrationDraft must list the same
// values as the constants below.
// ─────────────────────────────────────────────────────────────────────────────

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

type DegreeType string

const (
	DegreeHighSchool DegreeType = "HIGHSCHOOL"
	DegreeBachelor   DegreeType = "BACHELOR"
	DegreeMaster     DegreeType = "MASTER"
)

type CertificateType string

const (
	CertificateIELTS CertificateType = "IELTS"
	CertificateTOEFL CertificateType = "TOEFL"
	CertificateTOEIC CertificateType = "TOEIC"
	CertificateSAT   CertificateType = "SAT"
	CertificateNone  CertificateType = "NONE"
)

// NeedsUpload reports whether choosing this certificate type requires a
// scanned certificate image.
func (c CertificateType) NeedsUpload() bool {
	return c != "" && c != CertificateNone
}

type GradeType string

const (
	GradeGPA        GradeType = "GPA"
	GradeCGPA       GradeType = "CGPA"
	GradePercentage GradeType = "PERCENTAGE"
)

// Range returns the inclusive bounds a grade score must fall in.
// ok is false for an unknown grade type.
func (g GradeType) Range() (min, max float64, ok bool) {
	switch g {
	case GradeGPA:
		return 0, 4, true
	case GradeCGPA:
		return 0, 10, true
	case GradePercentage:
		return 0, 100, true
	default:
		return 0, 0, false
	}
}

type ChatRole string

const (
	RoleUser  ChatRole = "USER"
	RoleAdmin ChatRole = "ADMIN"
)

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// Program is a study programme offered by a School.
type Program struct {
	Name string `json:"name" yaml:"name" toml:"name"`
}

// School is one entry of the catalog. Programs keep the catalog order.
type School struct {
	Name     string    `json:"name"     yaml:"name"     toml:"name"`
	Country  string    `json:"country"  yaml:"country"  toml:"country"`
	Logo     string    `json:"logo"     yaml:"logo"     toml:"logo"`
	Programs []Program `json:"programs" yaml:"programs" toml:"programs"`
}

// HasProgram reports whether the school offers a programme with this name.
func (s School) HasProgram(name string) bool {
	for _, p := range s.Programs {
		if p.Name == name {
			return true
		}
	}
	return false
}

// SchoolCatalog is the ordered, read-only list of schools offered to
// applicants. It is shared between form instances and never mutated.
type SchoolCatalog []School

// Find returns the school with the given name.
func (c SchoolCatalog) Find(name string) (School, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return School{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

// RegistrationDraft is the in-progress registration form, submitted at once.
//
// Struct tags:
//
//  1. json:"..."    : the keys the browser form posts.
//  2. validate:"...": go-playground/validator rules. The cross-field rules
//     (grade range, certificate upload, school/country, program/school)
//     are registered by the registration package.
type RegistrationDraft struct {
	// account tab
	Email           string `json:"email"           validate:"required,email"`
	Password        string `json:"password"        validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`

	// profile tab
	Name         string    `json:"name"         validate:"required"`
	DOB          time.Time `json:"dob"          validate:"required"`
	Gender       Gender    `json:"gender"       validate:"required,oneof=MALE FEMALE OTHER"`
	PhoneNumber  string    `json:"phoneNumber"  validate:"required,e164|number"`
	IDCardNumber string    `json:"idCardNumber" validate:"required,number"`
	City         string    `json:"city"         validate:"required"`
	District     string    `json:"district"     validate:"required"`
	Ward         string    `json:"ward"         validate:"required"`
	AddressLine  string    `json:"addressLine"  validate:"required"`

	// education tab
	Country          string          `json:"country"          validate:"required"`
	SchoolName       string          `json:"schoolName"       validate:"required"`
	ProgramName      string          `json:"programName"      validate:"required"`
	DegreeType       DegreeType      `json:"degreeType"       validate:"required,oneof=HIGHSCHOOL BACHELOR MASTER"`
	CertificateType  CertificateType `json:"certificateType"  validate:"required,oneof=IELTS TOEFL TOEIC SAT NONE"`
	CertificateImage string          `json:"certificateImg,omitempty" validate:"omitempty,url"`
	GradeType        GradeType       `json:"gradeType"        validate:"required,oneof=GPA CGPA PERCENTAGE"`
	GradeScore       string          `json:"gradeScore"       validate:"required,numeric"`
}

// Outcome is what the registration and chat-support actions report back:
// exactly one of Success or Error is set.
type Outcome struct {
	Success string `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Applicant is a stored registration. Passwords never leave the
// registration action in plain text, and PasswordHash is never encoded.
type Applicant struct {
	ID               int64           `json:"id"`
	Email            string          `json:"email"`
	PasswordHash     string          `json:"-"`
	Name             string          `json:"name"`
	DOB              time.Time       `json:"dob"`
	Gender           Gender          `json:"gender"`
	PhoneNumber      string          `json:"phoneNumber"`
	IDCardNumber     string          `json:"idCardNumber"`
	City             string          `json:"city"`
	District         string          `json:"district"`
	Ward             string          `json:"ward"`
	AddressLine      string          `json:"addressLine"`
	Country          string          `json:"country"`
	SchoolName       string          `json:"schoolName"`
	ProgramName      string          `json:"programName"`
	DegreeType       DegreeType      `json:"degreeType"`
	CertificateType  CertificateType `json:"certificateType"`
	CertificateImage string          `json:"certificateImg,omitempty"`
	GradeType        GradeType       `json:"gradeType"`
	GradeScore       float64         `json:"gradeScore"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Chat
// ─────────────────────────────────────────────────────────────────────────────

// ChatMessage is one message of a support conversation. ID is generated by
// the sender so an optimistic local echo can be matched with the copy that
// comes back over the channel.
type ChatMessage struct {
	ID        string    `json:"id"        validate:"required,uuid"`
	Role      ChatRole  `json:"role"      validate:"required,oneof=USER ADMIN"`
	Name      string    `json:"name"`
	Message   string    `json:"message"   validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
	ClientID  string    `json:"clientId"  validate:"required"`
	UserID    string    `json:"userId"`
}

// ChatDraft is the compose box of a chat session.
type ChatDraft struct {
	Role     ChatRole `json:"role"`
	Message  string   `json:"message"`
	ClientID string   `json:"clientId"`
	UserID   string   `json:"userId"`
}

// Envelope is the payload carried by the realtime channel: {name, data}.
type Envelope struct {
	Name string      `json:"name"`
	Data ChatMessage `json:"data"`
}
