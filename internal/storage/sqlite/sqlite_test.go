package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/studyabroad-api/internal/config"
	"github.com/aanand-mishra/studyabroad-api/internal/storage"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func applicant(email string) types.Applicant {
	return types.Applicant{
		Email:           email,
		PasswordHash:    "$2a$10$hash",
		Name:            "Nguyen Van A",
		DOB:             time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:          types.GenderMale,
		PhoneNumber:     "0912345678",
		IDCardNumber:    "001206000001",
		City:            "Hanoi",
		District:        "Ba Dinh",
		Ward:            "Kim Ma",
		AddressLine:     "1 Kim Ma",
		Country:         "VN",
		SchoolName:      "A",
		ProgramName:     "CS",
		DegreeType:      types.DegreeHighSchool,
		CertificateType: types.CertificateNone,
		GradeType:       types.GradeGPA,
		GradeScore:      3.2,
		CreatedAt:       time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestApplicants(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateApplicant(ctx, applicant("a@example.com"))
	require.NoError(t, err)

	got, err := db.GetApplicantByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, "$2a$10$hash", got.PasswordHash)
	assert.Equal(t, types.GradeGPA, got.GradeType)
	assert.InDelta(t, 3.2, got.GradeScore, 1e-9)
	assert.True(t, got.DOB.Equal(time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC)))

	byEmail, err := db.GetApplicantByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)

	_, err = db.CreateApplicant(ctx, applicant("b@example.com"))
	require.NoError(t, err)

	all, err := db.GetApplicants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a@example.com", all[0].Email)
	assert.Equal(t, "b@example.com", all[1].Email)
}

func TestApplicantErrors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	all, err := db.GetApplicants(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	_, err = db.GetApplicantByID(ctx, 42)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = db.CreateApplicant(ctx, applicant("a@example.com"))
	require.NoError(t, err)
	_, err = db.CreateApplicant(ctx, applicant("a@example.com"))
	require.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestChatMessagesKeepInsertionOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	// later timestamp stored first
	msgs := []types.ChatMessage{
		{ID: "m1", ClientID: "c1", UserID: "u1", Role: types.RoleUser, Name: "Lan", Message: "hi", CreatedAt: base.Add(time.Minute)},
		{ID: "m2", ClientID: "c1", Role: types.RoleAdmin, Name: "Support", Message: "hello", CreatedAt: base},
		{ID: "m3", ClientID: "c2", Role: types.RoleUser, Message: "other", CreatedAt: base},
	}
	for _, m := range msgs {
		require.NoError(t, db.SaveChatMessage(ctx, m))
	}

	got, err := db.GetChatMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, types.RoleAdmin, got[1].Role)
	assert.True(t, got[0].CreatedAt.Equal(base.Add(time.Minute)))

	require.ErrorIs(t, db.SaveChatMessage(ctx, msgs[0]), storage.ErrDuplicate)

	none, err := db.GetChatMessages(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
