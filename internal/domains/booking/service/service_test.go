package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"agenda/config"
	"agenda/infras/otel/mocks"
	eventsMocks "agenda/internal/domains/booking/events/mocks"
	bookingMocks "agenda/internal/domains/booking/mocks"
	"agenda/internal/domains/booking/model"
	"agenda/internal/domains/booking/model/dto"
	"agenda/internal/domains/booking/service"
	scheduleMocks "agenda/internal/domains/schedule/mocks"
	scheduleModel "agenda/internal/domains/schedule/model"
	cacheMocks "agenda/shared/cache/mocks"
	"agenda/shared/constant"
	"agenda/shared/dateparse"
	"agenda/shared/failure"
	gModel "agenda/shared/model"
	"agenda/shared/timezone"
)

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Cache.TTL = 3600
	cfg.Scheduling.ConflictPolicy = constant.ConflictPolicyOverlap
	cfg.Scheduling.GraceMinutes = 30
	cfg.Scheduling.HoldTTLMinutes = 15
	cfg.Scheduling.MaxRangeDays = 60

	return cfg
}

type fixture struct {
	repo      *bookingMocks.MockBooking
	schedules *scheduleMocks.MockSchedule
	cache     *cacheMocks.MockRedisCache
	svc       service.Booking
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	repo := bookingMocks.NewMockBooking(ctrl)
	schedules := scheduleMocks.NewMockSchedule(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	publisher := eventsMocks.NewMockPublisher(ctrl)

	mockCache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	return fixture{
		repo:      repo,
		schedules: schedules,
		cache:     mockCache,
		svc:       service.New(repo, schedules, publisher, newTestConfig(), mockCache, mocks.NewOtel()),
	}
}

func userContext(id, email string) context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, id)
	ctx = context.WithValue(ctx, constant.ContextKeyUserEmail, email)

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleUser)
}

// nextSlot returns a slot start in the future so past-date validation
// stays out of the way.
func nextSlot(minutes int) (time.Time, string, string) {
	day := timezone.Now().AddDate(0, 0, 7)
	start := dateparse.At(day, minutes)

	return start, timezone.Format(start, constant.SlotDateFormat), dateparse.FormatClock(minutes)
}

func slotSchedule(start time.Time) scheduleModel.Schedule {
	return scheduleModel.Schedule{
		ID:              "schedule-id",
		ServiceType:     "asesoria-financiera",
		DayOfWeek:       int(start.Weekday()),
		StartMinute:     dateparse.MinutesOfDay(start),
		DurationMinutes: 60,
		Price:           150,
		Active:          true,
	}
}

func pendingHold(id string, start time.Time, expiresAt time.Time) model.Booking {
	return model.Booking{
		ID:              id,
		OwnerID:         "other-user",
		OwnerEmail:      "other@example.com",
		ServiceType:     "asesoria-financiera",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		DurationMinutes: 60,
		Price:           150,
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		HoldExpiresAt:   &expiresAt,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
		},
	}
}

func TestBookingService_AcquireHold(t *testing.T) {
	start, date, clock := nextSlot(840)

	tests := []struct {
		name      string
		req       dto.AcquireHoldRequest
		setupMock func(f fixture)
		wantErr   bool
		checkErr  func(t *testing.T, err error)
	}{
		{
			name: "successful hold",
			req:  dto.AcquireHoldRequest{ServiceType: "asesoria-financiera", Date: date, Time: clock},
			setupMock: func(f fixture) {
				f.schedules.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(slotSchedule(start), nil)

				f.repo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Booking{}, nil)

				f.repo.EXPECT().
					AcquireSlot(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, booking model.Booking) error {
						assert.Equal(t, model.StatusPending, booking.Status)
						assert.NotNil(t, booking.HoldExpiresAt)
						assert.True(t, booking.StartTime.Equal(start))

						return nil
					})
			},
			wantErr: false,
		},
		{
			name: "no schedule offers the slot",
			req:  dto.AcquireHoldRequest{ServiceType: "asesoria-financiera", Date: date, Time: clock},
			setupMock: func(f fixture) {
				f.schedules.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(scheduleModel.Schedule{}, nil)
			},
			wantErr: true,
		},
		{
			name: "slot held by a live hold",
			req:  dto.AcquireHoldRequest{ServiceType: "asesoria-financiera", Date: date, Time: clock},
			setupMock: func(f fixture) {
				f.schedules.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(slotSchedule(start), nil)

				f.repo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Booking{pendingHold("held", start, timezone.Now().Add(10*time.Minute))}, nil)
			},
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				assert.True(t, failure.IsConflict(err))
			},
		},
		{
			name: "expired hold does not block the slot",
			req:  dto.AcquireHoldRequest{ServiceType: "asesoria-financiera", Date: date, Time: clock},
			setupMock: func(f fixture) {
				f.schedules.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(slotSchedule(start), nil)

				f.repo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Booking{pendingHold("expired", start, timezone.Now().Add(-10*time.Minute))}, nil)

				f.repo.EXPECT().
					AcquireSlot(gomock.Any(), gomock.Any()).
					Return(nil)
			},
			wantErr: false,
		},
		{
			name: "insert race maps to conflict",
			req:  dto.AcquireHoldRequest{ServiceType: "asesoria-financiera", Date: date, Time: clock},
			setupMock: func(f fixture) {
				f.schedules.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(slotSchedule(start), nil)

				f.repo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Booking{}, nil)

				f.repo.EXPECT().
					AcquireSlot(gomock.Any(), gomock.Any()).
					Return(failure.SlotTakenError)
			},
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				assert.True(t, failure.IsConflict(err))
			},
		},
		{
			name:      "slot in the past is rejected",
			req:       dto.AcquireHoldRequest{ServiceType: "asesoria-financiera", Date: "2020-01-06", Time: "14:00"},
			setupMock: func(f fixture) {},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.AcquireHold(userContext("user-1", "user1@example.com"), tt.req)

			if tt.wantErr {
				assert.Error(t, err)

				if tt.checkErr != nil {
					tt.checkErr(t, err)
				}

				return
			}

			assert.NoError(t, err)
			assert.Equal(t, model.StatusPending, res.Status)
			assert.Equal(t, clock, res.Time)
		})
	}
}

func TestBookingService_Confirm(t *testing.T) {
	start, _, _ := nextSlot(840)

	tests := []struct {
		name      string
		setupMock func(f fixture)
		wantErr   bool
	}{
		{
			name: "pending hold is promoted",
			setupMock: func(f fixture) {
				hold := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))

				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(hold, nil)

				f.repo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ any) error {
						assert.Equal(t, model.StatusConfirmed, fields[model.FieldStatus])
						assert.Equal(t, model.PaymentPaid, fields[model.FieldPaymentStatus])
						assert.Nil(t, fields[model.FieldHoldExpiresAt])

						return nil
					})

				confirmed := hold
				confirmed.Status = model.StatusConfirmed
				confirmed.PaymentStatus = model.PaymentPaid
				confirmed.HoldExpiresAt = nil

				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(confirmed, nil)
			},
			wantErr: false,
		},
		{
			name: "already confirmed is a no-op",
			setupMock: func(f fixture) {
				confirmed := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))
				confirmed.Status = model.StatusConfirmed
				confirmed.HoldExpiresAt = nil

				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(confirmed, nil)
			},
			wantErr: false,
		},
		{
			name: "expired hold cannot be confirmed",
			setupMock: func(f fixture) {
				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(pendingHold("booking-1", start, timezone.Now().Add(-time.Minute)), nil)
			},
			wantErr: true,
		},
		{
			name: "cancelled booking cannot be confirmed",
			setupMock: func(f fixture) {
				cancelled := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))
				cancelled.Status = model.StatusCancelled

				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(cancelled, nil)
			},
			wantErr: true,
		},
		{
			name: "unknown booking",
			setupMock: func(f fixture) {
				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Booking{}, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.Confirm(context.Background(), "booking-1", "evt-123")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, model.StatusConfirmed, res.Status)
			}
		})
	}
}

func TestBookingService_Release(t *testing.T) {
	start, _, _ := nextSlot(840)

	tests := []struct {
		name      string
		ctx       context.Context
		setupMock func(f fixture)
		wantErr   bool
	}{
		{
			name: "owner releases a pending hold",
			ctx:  userContext("other-user", "other@example.com"),
			setupMock: func(f fixture) {
				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute)), nil)

				f.repo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ any) error {
						assert.Equal(t, model.StatusCancelled, fields[model.FieldStatus])

						return nil
					})
			},
			wantErr: false,
		},
		{
			name: "releasing a paid booking refunds it",
			ctx:  userContext("other-user", "other@example.com"),
			setupMock: func(f fixture) {
				paid := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))
				paid.Status = model.StatusConfirmed
				paid.PaymentStatus = model.PaymentPaid

				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(paid, nil)

				f.repo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ any) error {
						assert.Equal(t, model.PaymentRefunded, fields[model.FieldPaymentStatus])

						return nil
					})
			},
			wantErr: false,
		},
		{
			name: "already cancelled releases cleanly",
			ctx:  userContext("other-user", "other@example.com"),
			setupMock: func(f fixture) {
				cancelled := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))
				cancelled.Status = model.StatusCancelled

				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(cancelled, nil)
			},
			wantErr: false,
		},
		{
			name: "stranger cannot release someone else's booking",
			ctx:  userContext("stranger", "stranger@example.com"),
			setupMock: func(f fixture) {
				f.repo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute)), nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := f.svc.Release(tt.ctx, "booking-1")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBookingService_HandlePaymentEvent(t *testing.T) {
	start, _, _ := nextSlot(840)

	t.Run("failed payment cancels the hold", func(t *testing.T) {
		f := newFixture(t)

		hold := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(hold, nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, fields map[string]any, _ any) error {
				assert.Equal(t, model.PaymentFailed, fields[model.FieldPaymentStatus])
				assert.Equal(t, model.StatusCancelled, fields[model.FieldStatus])

				return nil
			})

		cancelled := hold
		cancelled.Status = model.StatusCancelled
		cancelled.PaymentStatus = model.PaymentFailed

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(cancelled, nil)

		res, err := f.svc.HandlePaymentEvent(context.Background(), dto.PaymentWebhookRequest{
			BookingID: "booking-1",
			Status:    model.PaymentFailed,
		})

		assert.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, res.Status)
	})

	t.Run("paid event promotes the hold", func(t *testing.T) {
		f := newFixture(t)

		hold := pendingHold("booking-1", start, timezone.Now().Add(10*time.Minute))

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(hold, nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		confirmed := hold
		confirmed.Status = model.StatusConfirmed
		confirmed.PaymentStatus = model.PaymentPaid
		confirmed.HoldExpiresAt = nil

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed, nil)

		res, err := f.svc.HandlePaymentEvent(context.Background(), dto.PaymentWebhookRequest{
			BookingID:       "booking-1",
			Status:          model.PaymentPaid,
			ExternalEventID: "evt-123",
		})

		assert.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, res.Status)
	})
}

func TestBookingService_SweepExpiredHolds(t *testing.T) {
	t.Run("sweep delegates to the repository", func(t *testing.T) {
		f := newFixture(t)

		f.repo.EXPECT().
			CancelExpiredHolds(gomock.Any()).
			Return(nil)

		assert.NoError(t, f.svc.SweepExpiredHolds(context.Background()))
	})

	t.Run("sweep error is surfaced", func(t *testing.T) {
		f := newFixture(t)

		f.repo.EXPECT().
			CancelExpiredHolds(gomock.Any()).
			Return(errors.New("database error"))

		assert.Error(t, f.svc.SweepExpiredHolds(context.Background()))
	})
}
