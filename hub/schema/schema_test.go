package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestEnumValidation(t *testing.T) {
	for _, status := range WorkStatuses {
		assert.NoError(t, CheckValidStatus(status))
	}
	for _, priority := range TaskPriorities {
		assert.NoError(t, CheckValidPriority(priority))
	}
	for _, role := range TeamRoles {
		assert.NoError(t, CheckValidTeamRole(role))
	}
	for _, role := range UserRoles {
		assert.NoError(t, CheckValidUserRole(role))
	}
	for _, status := range DocumentStatuses {
		assert.NoError(t, CheckValidDocumentStatus(status))
	}

	invalid := []error{
		CheckValidStatus("bogus"),
		CheckValidStatus(""),
		CheckValidStatus("Planned"),
		CheckValidPriority("critical"),
		CheckValidTeamRole("owner"),
		CheckValidUserRole("guest"),
		CheckValidDocumentStatus("archived"),
	}
	for _, err := range invalid {
		assert.ErrorIs(t, err, ErrInvalidEnum)
	}

	err := CheckValidStatus("done")
	assert.True(t, strings.Contains(err.Error(), "planned, in_progress, completed, on_hold"))
}

func TestParseCanonicalId(t *testing.T) {
	id := uuid.New()

	parsed, err := ParseCanonicalId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	parsed, err = ParseCanonicalId(strings.ToUpper(id.String()))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	rejected := []string{
		"not-a-uuid",
		"",
		strings.ReplaceAll(id.String(), "-", ""),
		"urn:uuid:" + id.String(),
		"{" + id.String() + "}",
		id.String() + "0",
		"g" + id.String()[1:],
	}
	for _, value := range rejected {
		_, err := ParseCanonicalId(value)
		assert.Error(t, err, value)
	}
}

func newMockDb(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDb.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDb, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return db, mock
}

func TestGetProjectDbFailure(t *testing.T) {
	db, mock := newMockDb(t)

	mock.ExpectQuery(`SELECT \* FROM "projects"`).WillReturnError(errors.New("connection reset by peer"))

	_, err := GetProject(uuid.New(), db, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDbAccessFailed)
	assert.False(t, errors.Is(err, ErrProjectNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProjectNotFound(t *testing.T) {
	db, mock := newMockDb(t)

	mock.ExpectQuery(`SELECT \* FROM "projects"`).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := GetProject(uuid.New(), db, false)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsProjectTeamMember(t *testing.T) {
	db, mock := newMockDb(t)

	unbound := Project{Id: uuid.New()}
	isMember, err := IsProjectTeamMember(unbound, uuid.New(), db)
	require.NoError(t, err)
	assert.False(t, isMember)

	teamId := uuid.New()
	userId := uuid.New()
	bound := Project{Id: uuid.New(), TeamId: &teamId}

	mock.ExpectQuery(`SELECT \* FROM "team_members"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "user_id", "role"}).AddRow(uuid.New().String(), teamId.String(), userId.String(), MemberRole))
	isMember, err = IsProjectTeamMember(bound, userId, db)
	require.NoError(t, err)
	assert.True(t, isMember)

	mock.ExpectQuery(`SELECT \* FROM "team_members"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "user_id", "role"}))
	isMember, err = IsProjectTeamMember(bound, uuid.New(), db)
	require.NoError(t, err)
	assert.False(t, isMember)

	assert.NoError(t, mock.ExpectationsWereMet())
}
