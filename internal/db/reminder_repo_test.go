package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remindbot/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows for the reminder+owner JOIN ---

type reminderRowData struct {
	id              string
	userID          string
	templateID      *string
	message         string
	createdAt       time.Time
	scheduledAt     time.Time
	nextTriggerAt   time.Time
	repeatMinutes   *int
	isActive        bool
	lastTriggeredAt *time.Time

	ownerID         string
	ownerTelegramID int64
	ownerUsername   *string
	ownerTimeZone   *string
	ownerCreatedAt  time.Time
}

type reminderMockRows struct {
	data    []reminderRowData
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newReminderMockRows(data ...reminderRowData) *reminderMockRows {
	return &reminderMockRows{data: data, idx: -1}
}

func (r *reminderMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *reminderMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	*dest[0].(*string) = row.id
	*dest[1].(*string) = row.userID
	*dest[2].(**string) = row.templateID
	*dest[3].(*string) = row.message
	*dest[4].(*time.Time) = row.createdAt
	*dest[5].(*time.Time) = row.scheduledAt
	*dest[6].(*time.Time) = row.nextTriggerAt
	*dest[7].(**int) = row.repeatMinutes
	*dest[8].(*bool) = row.isActive
	*dest[9].(**time.Time) = row.lastTriggeredAt
	*dest[10].(*string) = row.ownerID
	*dest[11].(*int64) = row.ownerTelegramID
	*dest[12].(**string) = row.ownerUsername
	*dest[13].(**string) = row.ownerTimeZone
	*dest[14].(*time.Time) = row.ownerCreatedAt
	return nil
}

func (r *reminderMockRows) Close()                                      { r.closed = true }
func (r *reminderMockRows) Err() error                                  { return r.errVal }
func (r *reminderMockRows) CommandTag() pgconn.CommandTag               { return pgconn.CommandTag{} }
func (r *reminderMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *reminderMockRows) RawValues() [][]byte                         { return nil }
func (r *reminderMockRows) Values() ([]any, error)                      { return nil, nil }
func (r *reminderMockRows) Conn() *pgx.Conn                             { return nil }

// --- ReminderRepository Tests ---

func TestReminderRepository_Insert_Success(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	created := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "rem_1"
			*dest[1].(*time.Time) = created
			return nil
		},
	}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	reminder := &types.Reminder{
		UserID:        "user_1",
		Message:       "take meds",
		ScheduledAt:   created.Add(time.Hour),
		NextTriggerAt: created.Add(time.Hour),
		IsActive:      true,
	}
	err := repo.Insert(context.Background(), reminder)
	require.NoError(t, err)
	assert.Equal(t, "rem_1", reminder.ID)
	assert.Equal(t, created, reminder.CreatedAt)
	dbMock.AssertExpectations(t)
}

func TestReminderRepository_Insert_DBError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	row := &mockRow{scanErr: errors.New("connection refused")}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	err := repo.Insert(context.Background(), &types.Reminder{UserID: "user_1", Message: "x"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestReminderRepository_GetDueBy_ReturnsOwner(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	now := time.Now().UTC()
	username := "alice"
	rows := newReminderMockRows(reminderRowData{
		id:              "rem_1",
		userID:          "user_1",
		message:         "drink water",
		createdAt:       now.Add(-time.Hour),
		scheduledAt:     now.Add(-time.Minute),
		nextTriggerAt:   now.Add(-time.Minute),
		isActive:        true,
		ownerID:         "user_1",
		ownerTelegramID: 4242,
		ownerUsername:   &username,
		ownerCreatedAt:  now.Add(-time.Hour),
	})
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	due, err := repo.GetDueBy(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "rem_1", due[0].ID)
	require.NotNil(t, due[0].Owner)
	assert.Equal(t, int64(4242), due[0].Owner.TelegramID)
	assert.True(t, rows.closed)
}

func TestReminderRepository_GetDueBy_QueryError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.GetDueBy(context.Background(), time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestReminderRepository_GetByIDs_EmptyInput(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	// No query should be issued for an empty id list.
	reminders, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, reminders)
	dbMock.AssertNotCalled(t, "Query")
}

func TestReminderRepository_UpdateAfterDelivery_Repeat(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	triggeredAt := time.Now().UTC()
	next := triggeredAt.Add(30 * time.Minute)

	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{"rem_1", triggeredAt, next}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateAfterDelivery(context.Background(), "rem_1", triggeredAt, &next)
	require.NoError(t, err)
	dbMock.AssertExpectations(t)
}

func TestReminderRepository_UpdateAfterDelivery_Retire(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	triggeredAt := time.Now().UTC()
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{"rem_1", triggeredAt}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateAfterDelivery(context.Background(), "rem_1", triggeredAt, nil)
	require.NoError(t, err)
	dbMock.AssertExpectations(t)
}

func TestReminderRepository_Deactivate_Affected(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	affected, err := repo.Deactivate(context.Background(), "rem_1", "user_1")
	require.NoError(t, err)
	assert.True(t, affected)
}

func TestReminderRepository_Deactivate_AlreadyInactive(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	affected, err := repo.Deactivate(context.Background(), "rem_1", "user_1")
	require.NoError(t, err)
	assert.False(t, affected)
}

func TestReminderRepository_ListActiveForOwner_IterationError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewReminderRepository(dbMock)

	rows := &reminderMockRows{idx: -1, errVal: errors.New("broken stream")}
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListActiveForOwner(context.Background(), "user_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
