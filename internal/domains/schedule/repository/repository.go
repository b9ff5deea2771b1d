package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"agenda/infras/otel"
	"agenda/infras/postgres"
	"agenda/internal/domains/schedule/model"
	"agenda/shared/constant"
	gDto "agenda/shared/dto"
	"agenda/shared/failure"
	gRepo "agenda/shared/repository"
)

type Schedule interface {
	Insert(ctx context.Context, model model.Schedule) error
	InsertBulk(ctx context.Context, models []model.Schedule) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Schedule, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Schedule, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	Delete(ctx context.Context, filter gDto.FilterGroup) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Schedule]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Schedule {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Schedule](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

// Insert maps a violation of the (service_type, day_of_week, start_minute)
// unique key onto a conflict failure.
func (repo *repositoryImpl) Insert(ctx context.Context, schedule model.Schedule) error {
	return translateUniqueViolation(repo.Repository.Insert(ctx, schedule))
}

func (repo *repositoryImpl) InsertBulk(ctx context.Context, schedules []model.Schedule) error {
	return translateUniqueViolation(repo.Repository.InsertBulk(ctx, schedules))
}

func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == constant.PqErrorCodeUniqueViolation {
		return failure.Conflict("a schedule already exists for that service, day and time") //nolint:wrapcheck
	}

	return err
}
