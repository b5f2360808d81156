// Package actions implements the two server actions the portal calls:
// register (create an applicant account) and sendChatSupport (store a
// support-chat message). Both answer with a types.Outcome: a message for
// the user on success or failure. A returned error means the action could
// not run at all (e.g. the database is down).
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/aanand-mishra/studyabroad-api/internal/storage"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

// User-facing messages.
const (
	MsgRegistered    = "Registration successful! Redirecting to login..."
	MsgEmailInUse    = "Email already in use"
	MsgInvalidFields = "Invalid fields"
	MsgMessageSent   = "Message sent"
	MsgDuplicateSent = "Message already sent"
)

// Registrar is the register action.
type Registrar struct {
	store storage.Storage
	cost  int
	now   func() time.Time
}

// NewRegistrar builds the register action. cost is the bcrypt cost;
// zero means bcrypt.DefaultCost.
func NewRegistrar(store storage.Storage, cost int) *Registrar {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Registrar{store: store, cost: cost, now: time.Now}
}

// Register hashes the password and stores the applicant. The draft is
// expected to be validated already; only the grade score is re-parsed.
func (r *Registrar) Register(ctx context.Context, d types.RegistrationDraft) (types.Outcome, error) {
	score, err := strconv.ParseFloat(d.GradeScore, 64)
	if err != nil {
		return types.Outcome{Error: MsgInvalidFields}, nil
	}

	email := strings.ToLower(strings.TrimSpace(d.Email))

	_, err = r.store.GetApplicantByEmail(ctx, email)
	switch {
	case err == nil:
		return types.Outcome{Error: MsgEmailInUse}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return types.Outcome{}, fmt.Errorf("actions.Register: lookup: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(d.Password), r.cost)
	if err != nil {
		return types.Outcome{}, fmt.Errorf("actions.Register: hash password: %w", err)
	}

	id, err := r.store.CreateApplicant(ctx, types.Applicant{
		Email:            email,
		PasswordHash:     string(hash),
		Name:             d.Name,
		DOB:              d.DOB,
		Gender:           d.Gender,
		PhoneNumber:      d.PhoneNumber,
		IDCardNumber:     d.IDCardNumber,
		City:             d.City,
		District:         d.District,
		Ward:             d.Ward,
		AddressLine:      d.AddressLine,
		Country:          d.Country,
		SchoolName:       d.SchoolName,
		ProgramName:      d.ProgramName,
		DegreeType:       d.DegreeType,
		CertificateType:  d.CertificateType,
		CertificateImage: d.CertificateImage,
		GradeType:        d.GradeType,
		GradeScore:       score,
		CreatedAt:        r.now().UTC(),
	})
	if err != nil {
		// lost a race with another registration of the same email
		if errors.Is(err, storage.ErrDuplicate) {
			return types.Outcome{Error: MsgEmailInUse}, nil
		}
		return types.Outcome{}, fmt.Errorf("actions.Register: %w", err)
	}

	slog.Info("applicant registered", slog.Int64("id", id))
	return types.Outcome{Success: MsgRegistered}, nil
}

// ChatSupport is the sendChatSupport action.
type ChatSupport struct {
	store    storage.Storage
	validate *validator.Validate
}

func NewChatSupport(store storage.Storage) *ChatSupport {
	return &ChatSupport{store: store, validate: validator.New()}
}

// SendChatSupport stores msg. Storing the same message id twice reports
// MsgDuplicateSent without storing it again.
func (c *ChatSupport) SendChatSupport(ctx context.Context, msg types.ChatMessage) (types.Outcome, error) {
	if err := c.validate.Struct(msg); err != nil {
		slog.Debug("rejected chat message", slog.String("error", err.Error()))
		return types.Outcome{Error: MsgInvalidFields}, nil
	}

	if err := c.store.SaveChatMessage(ctx, msg); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return types.Outcome{Error: MsgDuplicateSent}, nil
		}
		return types.Outcome{}, fmt.Errorf("actions.SendChatSupport: %w", err)
	}

	return types.Outcome{Success: MsgMessageSent}, nil
}
