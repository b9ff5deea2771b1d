package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"agenda/config"
	"agenda/infras/otel/mocks"
	scheduleMocks "agenda/internal/domains/schedule/mocks"
	"agenda/internal/domains/schedule/model"
	"agenda/internal/domains/schedule/model/dto"
	"agenda/internal/domains/schedule/service"
	cacheMocks "agenda/shared/cache/mocks"
	"agenda/shared/constant"
	gDto "agenda/shared/dto"
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

func mondayTemplate(id string, startMinute, durationMinutes int) model.Schedule {
	return model.Schedule{
		ID:              id,
		ServiceType:     "asesoria-financiera",
		DayOfWeek:       1,
		StartMinute:     startMinute,
		DurationMinutes: durationMinutes,
		Price:           150,
		Active:          true,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  "admin",
			ModifiedBy: "admin",
		},
	}
}

func TestScheduleService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := scheduleMocks.NewMockSchedule(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockOtel := mocks.NewOtel()

	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	svc := service.New(mockRepo, newTestConfig(), mockCache, mockOtel)

	tests := []struct {
		name      string
		req       dto.CreateScheduleRequest
		setupMock func()
		wantErr   bool
	}{
		{
			name: "single day creation",
			req: dto.CreateScheduleRequest{
				ServiceType:     "asesoria-financiera",
				DaysOfWeek:      []int{1},
				StartTime:       "10:00",
				DurationMinutes: 60,
				Price:           150,
			},
			setupMock: func() {
				mockRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Schedule{}, nil)

				mockRepo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					Return(nil)
			},
			wantErr: false,
		},
		{
			name: "multi day creation uses bulk insert",
			req: dto.CreateScheduleRequest{
				ServiceType:     "asesoria-financiera",
				DaysOfWeek:      []int{1, 3, 5},
				StartTime:       "10:00",
				DurationMinutes: 60,
				Price:           150,
			},
			setupMock: func() {
				mockRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Schedule{}, nil).
					Times(3)

				mockRepo.EXPECT().
					InsertBulk(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, schedules []model.Schedule) error {
						assert.Len(t, schedules, 3)

						return nil
					})
			},
			wantErr: false,
		},
		{
			name: "window inside grace period is rejected",
			req: dto.CreateScheduleRequest{
				ServiceType:     "entrenamiento-trading",
				DaysOfWeek:      []int{1},
				StartTime:       "10:15",
				DurationMinutes: 60,
				Price:           200,
			},
			setupMock: func() {
				// Existing 10:00-11:00 template padded by 30 minutes
				// blocks anything before 11:30.
				mockRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Schedule{mondayTemplate("existing-id", 600, 60)}, nil)
			},
			wantErr: true,
		},
		{
			name: "window crossing midnight is rejected",
			req: dto.CreateScheduleRequest{
				ServiceType:     "asesoria-financiera",
				DaysOfWeek:      []int{1},
				StartTime:       "23:30",
				DurationMinutes: 60,
				Price:           150,
			},
			setupMock: func() {},
			wantErr:   true,
		},
		{
			name: "duplicate template maps to conflict",
			req: dto.CreateScheduleRequest{
				ServiceType:     "asesoria-financiera",
				DaysOfWeek:      []int{1},
				StartTime:       "10:00",
				DurationMinutes: 60,
				Price:           150,
			},
			setupMock: func() {
				mockRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]model.Schedule{}, nil)

				mockRepo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					Return(failure.Conflict("a schedule already exists for that service, day and time"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "test-admin")
			err := svc.Create(ctx, tt.req)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleService_ValidateSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := scheduleMocks.NewMockSchedule(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockOtel := mocks.NewOtel()

	svc := service.New(mockRepo, newTestConfig(), mockCache, mockOtel)

	day := 1

	tests := []struct {
		name            string
		req             dto.ValidateSlotRequest
		existing        []model.Schedule
		wantValid       bool
		wantConflicts   int
		wantSuggestions []string
	}{
		{
			name: "no templates means valid",
			req: dto.ValidateSlotRequest{
				DayOfWeek: &day,
				StartTime: "10:00",
				EndTime:   "11:00",
			},
			existing:      []model.Schedule{},
			wantValid:     true,
			wantConflicts: 0,
		},
		{
			name: "start inside grace period conflicts and suggests",
			req: dto.ValidateSlotRequest{
				DayOfWeek: &day,
				StartTime: "10:15",
				EndTime:   "11:15",
			},
			existing:        []model.Schedule{mondayTemplate("existing-id", 600, 60)},
			wantValid:       false,
			wantConflicts:   1,
			wantSuggestions: []string{"11:30"},
		},
		{
			name: "window right after padded end is valid",
			req: dto.ValidateSlotRequest{
				DayOfWeek: &day,
				StartTime: "11:30",
				EndTime:   "12:30",
			},
			existing:      []model.Schedule{mondayTemplate("existing-id", 600, 60)},
			wantValid:     true,
			wantConflicts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo.EXPECT().
				GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(tt.existing, nil)

			res, err := svc.ValidateSlot(context.Background(), tt.req)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Len(t, res.Conflicts, tt.wantConflicts)

			if tt.wantSuggestions != nil {
				assert.Equal(t, tt.wantSuggestions, res.Suggestions)
			}
		})
	}
}

func TestScheduleService_ValidateSlot_InvalidWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := scheduleMocks.NewMockSchedule(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockOtel := mocks.NewOtel()

	svc := service.New(mockRepo, newTestConfig(), mockCache, mockOtel)

	day := 1

	_, err := svc.ValidateSlot(context.Background(), dto.ValidateSlotRequest{
		DayOfWeek: &day,
		StartTime: "11:00",
		EndTime:   "10:00",
	})

	assert.Error(t, err)
}

func TestScheduleService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := scheduleMocks.NewMockSchedule(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockOtel := mocks.NewOtel()

	svc := service.New(mockRepo, newTestConfig(), mockCache, mockOtel)

	tests := []struct {
		name      string
		id        string
		setupMock func()
		wantErr   bool
		wantTime  string
	}{
		{
			name: "cache miss, found in db",
			id:   "test-id",
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss"))

				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(mondayTemplate("test-id", 600, 60), nil)

				mockCache.EXPECT().
					Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr:  false,
			wantTime: "10:00",
		},
		{
			name: "not found",
			id:   "missing-id",
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss"))

				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Schedule{}, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			res, err := svc.Get(context.Background(), tt.id)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantTime, res.StartTime)
			}
		})
	}
}

func TestScheduleService_Deactivate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := scheduleMocks.NewMockSchedule(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockOtel := mocks.NewOtel()

	mockCache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	svc := service.New(mockRepo, newTestConfig(), mockCache, mockOtel)

	tests := []struct {
		name      string
		id        string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "successful deactivation",
			id:   "test-id",
			setupMock: func() {
				mockRepo.EXPECT().
					Exist(gomock.Any(), gomock.Any()).
					Return(true, nil)

				mockRepo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ gDto.FilterGroup) error {
						assert.Equal(t, false, fields[model.FieldActive])

						return nil
					})
			},
			wantErr: false,
		},
		{
			name: "schedule not found",
			id:   "missing-id",
			setupMock: func() {
				mockRepo.EXPECT().
					Exist(gomock.Any(), gomock.Any()).
					Return(false, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "test-admin")
			err := svc.Deactivate(ctx, tt.id)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
