// Package registration holds the state of a study-abroad registration
// form: the draft being filled in, the school and program choices that
// depend on it, validation, and submission to the register action.
//
// A Form is safe for concurrent use. Field updates are applied in call
// order; a submission validates a snapshot of the draft taken when it
// starts.
package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var (
	ErrEmptyCatalog       = errors.New("registration: catalog has no schools")
	ErrSubmissionInFlight = errors.New("registration: a submission is already in flight")
	ErrUnknownField       = errors.New("registration: unknown field")
	ErrUnknownTab         = errors.New("registration: unknown tab")
)

// Registrar is the external action that creates the applicant account.
type Registrar interface {
	Register(ctx context.Context, draft types.RegistrationDraft) (types.Outcome, error)
}

// Config controls what a successful submission tells the caller to do.
type Config struct {
	RedirectTo    string
	RedirectAfter time.Duration
}

// Result is the outcome of a submission the registrar answered.
// On success the caller notifies the user and navigates to RedirectTo
// after RedirectAfter; on failure Error is shown inline.
type Result struct {
	Success       string        `json:"success,omitempty"`
	Error         string        `json:"error,omitempty"`
	RedirectTo    string        `json:"redirectTo,omitempty"`
	RedirectAfter time.Duration `json:"-"`
}

// Choices are the option lists derived from the current draft.
type Choices struct {
	VisibleSchools  []types.School  `json:"schools"`
	VisiblePrograms []types.Program `json:"programs"`
}

// Initialize returns a draft seeded from the first school of the catalog.
func Initialize(catalog types.SchoolCatalog) (types.RegistrationDraft, error) {
	if len(catalog) == 0 {
		return types.RegistrationDraft{}, ErrEmptyCatalog
	}

	first := catalog[0]
	draft := types.RegistrationDraft{
		DOB:             time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC),
		Gender:          types.GenderMale,
		Country:         first.Country,
		SchoolName:      first.Name,
		DegreeType:      types.DegreeHighSchool,
		CertificateType: types.CertificateIELTS,
		GradeType:       types.GradeGPA,
		GradeScore:      "1",
	}
	if len(first.Programs) > 0 {
		draft.ProgramName = first.Programs[0].Name
	}

	return draft, nil
}

// Derive computes the schools offered in the draft's country and the
// programs of the draft's school, both in catalog order. It never returns
// nil slices.
func Derive(draft types.RegistrationDraft, catalog types.SchoolCatalog) Choices {
	c := Choices{
		VisibleSchools:  make([]types.School, 0),
		VisiblePrograms: make([]types.Program, 0),
	}

	for _, s := range catalog {
		if s.Country == draft.Country {
			c.VisibleSchools = append(c.VisibleSchools, s)
		}
	}
	if s, ok := catalog.Find(draft.SchoolName); ok {
		c.VisiblePrograms = append(c.VisiblePrograms, s.Programs...)
	}

	return c
}

// Form is one registration form instance.
type Form struct {
	mu      sync.Mutex
	catalog types.SchoolCatalog
	draft   types.RegistrationDraft
	tab     Tab

	validator *Validator
	registrar Registrar
	cfg       Config

	// at most one submission at a time
	submitting *semaphore.Weighted
}

// NewForm builds a form with a draft seeded from catalog. The validator may
// be shared between forms over the same catalog; nil builds a new one.
func NewForm(catalog types.SchoolCatalog, v *Validator, registrar Registrar, cfg Config) (*Form, error) {
	draft, err := Initialize(catalog)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = NewValidator(catalog)
	}

	return &Form{
		catalog:    catalog,
		draft:      draft,
		tab:        TabAccount,
		validator:  v,
		registrar:  registrar,
		cfg:        cfg,
		submitting: semaphore.NewWeighted(1),
	}, nil
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() types.RegistrationDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Load replaces the whole draft, e.g. with one posted by a client.
// Dependent fields are kept as given; Validate reports inconsistencies.
func (f *Form) Load(d types.RegistrationDraft) {
	f.mu.Lock()
	f.draft = d
	f.mu.Unlock()
}

// SetField parses raw for field and stores it. A parse error leaves the
// draft untouched.
//
// Selections that a change invalidates are reset:
//   - country: school and program move to the first school of the new
//     country and its first program (empty if the country has none);
//   - schoolName: program moves to the school's first program unless the
//     current one is offered there;
//   - certificateType: a previously uploaded image is cleared.
func (f *Form) SetField(field Field, raw string) error {
	b, ok := bindings[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	date, err := b.parse(field, raw)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.draft
	assign(&f.draft, field, raw, date)

	switch field {
	case FieldCountry:
		if f.draft.Country != prev.Country {
			f.resetSchool()
		}
	case FieldSchoolName:
		f.resetProgram()
	case FieldCertificateType:
		if f.draft.CertificateType != prev.CertificateType {
			f.draft.CertificateImage = ""
		}
	}

	return nil
}

// resetSchool picks the first school of the draft's country.
// Callers hold f.mu.
func (f *Form) resetSchool() {
	f.draft.SchoolName = ""
	f.draft.ProgramName = ""
	for _, s := range f.catalog {
		if s.Country == f.draft.Country {
			f.draft.SchoolName = s.Name
			if len(s.Programs) > 0 {
				f.draft.ProgramName = s.Programs[0].Name
			}
			return
		}
	}
}

// resetProgram keeps the program if the selected school offers it.
// Callers hold f.mu.
func (f *Form) resetProgram() {
	school, ok := f.catalog.Find(f.draft.SchoolName)
	if !ok || len(school.Programs) == 0 {
		f.draft.ProgramName = ""
		return
	}
	if !school.HasProgram(f.draft.ProgramName) {
		f.draft.ProgramName = school.Programs[0].Name
	}
}

// Choices derives the option lists for the current draft.
func (f *Form) Choices() Choices {
	return Derive(f.Draft(), f.catalog)
}

// SelectTab switches the active tab.
func (f *Form) SelectTab(tab Tab) error {
	switch tab {
	case TabAccount, TabProfile, TabEducation:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}

	f.mu.Lock()
	f.tab = tab
	f.mu.Unlock()
	return nil
}

func (f *Form) ActiveTab() Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tab
}

// Validate checks the current draft.
func (f *Form) Validate() (ValidatedDraft, FieldErrors) {
	return f.validator.Validate(f.Draft())
}

// Submit validates the draft and hands it to the registrar.
//
// It returns ErrSubmissionInFlight without side effects if another Submit
// on this form has not returned yet, and FieldErrors (as the error) if the
// draft is invalid; the registrar is not called in either case. A refusal
// by the registrar is not an error: it comes back in Result.Error.
func (f *Form) Submit(ctx context.Context) (Result, error) {
	if !f.submitting.TryAcquire(1) {
		return Result{}, ErrSubmissionInFlight
	}
	defer f.submitting.Release(1)

	valid, errs := f.Validate()
	if errs != nil {
		return Result{}, errs
	}

	outcome, err := f.registrar.Register(ctx, valid.Draft)
	if err != nil {
		return Result{}, fmt.Errorf("registration: register: %w", err)
	}

	if outcome.Error != "" {
		return Result{Error: outcome.Error}, nil
	}

	return Result{
		Success:       outcome.Success,
		RedirectTo:    f.cfg.RedirectTo,
		RedirectAfter: f.cfg.RedirectAfter,
	}, nil
}
