package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/schema"
	"campus_hub/hub/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	return http.StatusInternalServerError
}

var errInternal = errors.New("internal server error")

// writeError reports err to the client with the status attached to it. The
// detail of server side failures is only written to the log.
func writeError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	code := GetResponseCode(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed", "action", action, "error", err)
		if errors.Is(err, schema.ErrDbAccessFailed) {
			err = schema.ErrDbAccessFailed
		} else {
			err = errInternal
		}
	}
	http.Error(w, fmt.Sprintf("error %v: %v", action, err), code)
}

func dbFailure(logger *slog.Logger, msg string, err error, args ...any) error {
	logger.Error(msg, append(args, "error", err)...)
	return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
}

func checkTeamExists(txn *gorm.DB, teamId uuid.UUID) (schema.Team, error) {
	team, err := schema.GetTeam(teamId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			return team, CodedError(err, http.StatusNotFound)
		}
		return team, CodedError(err, http.StatusInternalServerError)
	}
	return team, nil
}

// checkTeamReference is used when a team id is supplied in a request body, an
// unknown team there is a bad reference rather than a missing resource.
func checkTeamReference(txn *gorm.DB, teamId uuid.UUID) error {
	if _, err := schema.GetTeam(teamId, txn); err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			return CodedError(errors.New("invalid team"), http.StatusBadRequest)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkUserReference(txn *gorm.DB, userId uuid.UUID, field string) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(fmt.Errorf("invalid %v", field), http.StatusBadRequest)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkProjectExists(txn *gorm.DB, projectId uuid.UUID) (schema.Project, error) {
	project, err := schema.GetProject(projectId, txn, false)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			return project, CodedError(err, http.StatusNotFound)
		}
		return project, CodedError(err, http.StatusInternalServerError)
	}
	return project, nil
}

func checkTaskExists(txn *gorm.DB, projectId, taskId uuid.UUID) (schema.Task, error) {
	task, err := schema.GetTask(projectId, taskId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrTaskNotFound) {
			return task, CodedError(err, http.StatusNotFound)
		}
		return task, CodedError(err, http.StatusInternalServerError)
	}
	return task, nil
}

func checkEnumValue(check func(string) error, value string) error {
	if err := check(value); err != nil {
		return CodedError(err, http.StatusBadRequest)
	}
	return nil
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(dateLayout, value)
}

// parseSchedule combines a date and an optional HH:MM time of day.
func parseSchedule(date, clock *string, field string) (*time.Time, *string, error) {
	if clock != nil {
		if *clock == "" {
			clock = nil
		} else if _, err := time.Parse(timeLayout, *clock); err != nil {
			return nil, nil, CodedError(fmt.Errorf("invalid %v time '%v', must have the format HH:MM", field, *clock), http.StatusBadRequest)
		}
	}

	if date == nil || *date == "" {
		return nil, clock, nil
	}

	day, err := parseDate(*date)
	if err != nil {
		return nil, nil, CodedError(fmt.Errorf("invalid %v date '%v'", field, *date), http.StatusBadRequest)
	}

	if clock != nil {
		tod, _ := time.Parse(timeLayout, *clock)
		day = time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, time.UTC)
	}

	return &day, clock, nil
}

func checkDiskUsage(store storage.Storage, logger *slog.Logger) error {
	stats, err := store.Usage()
	if err != nil {
		if errors.Is(err, storage.ErrUsageNotSupported) {
			return nil
		}
		logger.Error("unable to get disk usage from storage", "error", err)
		return CodedError(errors.New("unable to get disk usage"), http.StatusInternalServerError)
	}
	oneMib := uint64(1024 * 1024)
	// Either 10% of the disk or 10Gb must stay free.
	threshold := min(stats.TotalBytes/10, 10*1024*oneMib)
	if stats.FreeBytes < threshold {
		used := (stats.TotalBytes - stats.FreeBytes) / oneMib
		total := stats.TotalBytes / oneMib
		return CodedError(fmt.Errorf("insufficient disk space available, usage: %d/%d Mib", used, total), http.StatusInsufficientStorage)
	}
	return nil
}

func checkSufficientStorage(store storage.Storage, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			if err := checkDiskUsage(store, logger); err != nil {
				writeError(w, logger, "uploading file", err)
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}
