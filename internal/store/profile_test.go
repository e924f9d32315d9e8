package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eventdesk/accounts/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileStore_Roles(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProfileRepository(conn)

	mock.ExpectQuery(`FROM attendee_profiles .+ UNION ALL .+ FROM organizer_profiles`).
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("attendee").AddRow("organizer"))

	roles, err := repo.Roles(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, []types.Role{types.RoleAttendee, types.RoleOrganizer}, roles)
}

func TestProfileStore_Roles_None(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProfileRepository(conn)

	mock.ExpectQuery(`UNION ALL`).
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	roles, err := repo.Roles(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestProfileStore_CreateAttendee_Duplicate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProfileRepository(conn)

	mock.ExpectExec(`INSERT INTO attendee_profiles`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateAttendee(context.Background(), types.AttendeeProfile{IdentityID: "id-1", FullName: "Ann"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestProfileStore_CreateOrganizer(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProfileRepository(conn)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO organizer_profiles`).
		WithArgs("id-1", "Olga", "555", int64(7), "Main St 1", "Olga", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateOrganizer(context.Background(), types.OrganizerProfile{
		IdentityID:      "id-1",
		FullName:        "Olga",
		Phone:           "555",
		CompanyID:       7,
		BusinessAddress: "Main St 1",
		ContactPerson:   "Olga",
		CreatedAt:       created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileStore_CreateOrganizer_DBError(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProfileRepository(conn)

	mock.ExpectExec(`INSERT INTO organizer_profiles`).
		WillReturnError(errors.New("fk violation"))

	err := repo.CreateOrganizer(context.Background(), types.OrganizerProfile{IdentityID: "id-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestCompanyStore_GetOrCreate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCompanyRepository(conn)
	created := time.Now().UTC()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`INSERT INTO companies .+ ON CONFLICT \(name\) DO UPDATE`).
			WithArgs("Acme", "Main St 1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "created_at"}).
				AddRow(int64(3), "Acme", "Main St 1", created))
	}

	first, err := repo.GetOrCreate(context.Background(), "Acme", "Main St 1")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(context.Background(), "Acme", "Main St 1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
