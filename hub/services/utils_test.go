package services

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campus_hub/hub/schema"
	"campus_hub/utils/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorHidesServerFailures(t *testing.T) {
	logger := logging.Discard()

	w := httptest.NewRecorder()
	writeError(w, logger, "creating task", dbFailure(logger, "sql error", errors.New("pq: relation \"tasks\" does not exist")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), schema.ErrDbAccessFailed.Error())
	assert.NotContains(t, w.Body.String(), "relation")

	w = httptest.NewRecorder()
	writeError(w, logger, "uploading file", errors.New("disk on fire at /var/lib/hub"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "/var/lib/hub")
	assert.Contains(t, w.Body.String(), errInternal.Error())

	w = httptest.NewRecorder()
	writeError(w, logger, "assigning task", CodedError(ErrAssigneeNotTeamMember, http.StatusBadRequest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Assignee must be a team member")
}

func TestGetResponseCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", CodedError(schema.ErrTeamNotFound, http.StatusNotFound))
	assert.Equal(t, http.StatusNotFound, GetResponseCode(err))
	assert.True(t, errors.Is(err, schema.ErrTeamNotFound))

	assert.Equal(t, http.StatusInternalServerError, GetResponseCode(errors.New("plain")))
}

func TestParseSchedule(t *testing.T) {
	str := func(s string) *string { return &s }

	date, clock, err := parseSchedule(str("2024-03-01"), str("14:45"), "start")
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 3, 1, 14, 45, 0, 0, time.UTC)))
	assert.Equal(t, "14:45", *clock)

	date, clock, err = parseSchedule(str("2024-03-01T08:00:00+02:00"), nil, "start")
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)))
	assert.Nil(t, clock)

	date, clock, err = parseSchedule(nil, str(""), "end")
	require.NoError(t, err)
	assert.Nil(t, date)
	assert.Nil(t, clock)

	_, _, err = parseSchedule(str("2024-13-01"), nil, "end")
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(err))

	_, _, err = parseSchedule(str("2024-03-01"), str("9am"), "end")
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(err))
}

func TestAssigneeRequest(t *testing.T) {
	id, err := assignRequest{AssigneeId: []byte(`"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`)}.parseAssignee()
	require.NoError(t, err)
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", id.String())

	id, err = assignRequest{AssigneeId: []byte(`null`)}.parseAssignee()
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = assignRequest{}.parseAssignee()
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(err))

	_, err = assignRequest{AssigneeId: []byte(`42`)}.parseAssignee()
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(err))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitizeFilename("../../report.pdf"))
	assert.Equal(t, "report.pdf", sanitizeFilename(`C:\Users\me\report.pdf`))
	assert.Equal(t, "file", sanitizeFilename(""))
	assert.Equal(t, "a_b.txt", sanitizeFilename("a\nb.txt"))
}
