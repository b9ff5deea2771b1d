package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"agenda/infras/otel"
	"agenda/infras/postgres"
	"agenda/internal/domains/booking/model"
	"agenda/shared/constant"
	gDto "agenda/shared/dto"
	"agenda/shared/failure"
	gRepo "agenda/shared/repository"
	"agenda/shared/timezone"
)

type Booking interface {
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Booking, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Booking, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error

	// AcquireSlot atomically retires expired holds on the slot and inserts
	// the new pending booking. The partial unique index on
	// (service_type, start_time) makes the insert the authoritative
	// conflict check: a unique violation surfaces as failure.Conflict.
	AcquireSlot(ctx context.Context, booking model.Booking) error

	// CancelExpiredHolds lazily compacts pending rows whose hold expiry
	// passed. Reads never depend on it; it only prunes stale rows.
	CancelExpiredHolds(ctx context.Context) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Booking]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Booking {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Booking](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func (repo *repositoryImpl) AcquireSlot(ctx context.Context, booking model.Booking) (err error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.AcquireSlot")
	defer scope.End()
	defer scope.TraceIfError(err)

	tx, err := repo.db.Write.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction (%s): %w", model.EntityName, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to roll back slot acquisition")
			}
		}
	}()

	// Expired holds still occupy the unique index, so retire them first.
	if err = repo.cancelExpiredHoldsForSlot(ctx, tx, booking.ServiceType, booking.StartTime); err != nil {
		return err
	}

	if err = repo.Repository.InsertTx(ctx, tx, booking); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == constant.PqErrorCodeUniqueViolation {
			err = failure.SlotTakenError

			return err
		}

		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slot acquisition (%s): %w", model.EntityName, err)
	}

	return nil
}

func (repo *repositoryImpl) cancelExpiredHoldsForSlot(ctx context.Context, tx *sqlx.Tx, serviceType string, start time.Time) error {
	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: serviceType, Table: model.TableName},
			gDto.Filter{Field: model.FieldStartTime, Operator: gDto.FilterOperatorEq, Value: start, Table: model.TableName},
			gDto.Filter{Field: model.FieldStatus, Operator: gDto.FilterOperatorEq, Value: model.StatusPending, Table: model.TableName, ArgName: "status_pending"},
			gDto.Filter{Field: model.FieldHoldExpiresAt, Operator: gDto.FilterIsNotNull, Table: model.TableName},
			gDto.Filter{Field: model.FieldHoldExpiresAt, Operator: gDto.FilterOperatorLessEq, Value: timezone.Now(), Table: model.TableName, ArgName: "hold_deadline"},
		},
	}

	fields := map[string]any{
		model.FieldStatus:        model.StatusCancelled,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: "hold-expiry",
	}

	return repo.Repository.UpdateTx(ctx, tx, fields, filter) //nolint:wrapcheck
}

func (repo *repositoryImpl) CancelExpiredHolds(ctx context.Context) (err error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.CancelExpiredHolds")
	defer scope.End()
	defer scope.TraceIfError(err)

	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldStatus, Operator: gDto.FilterOperatorEq, Value: model.StatusPending, Table: model.TableName},
			gDto.Filter{Field: model.FieldHoldExpiresAt, Operator: gDto.FilterIsNotNull, Table: model.TableName},
			gDto.Filter{Field: model.FieldHoldExpiresAt, Operator: gDto.FilterOperatorLessEq, Value: timezone.Now(), Table: model.TableName, ArgName: "hold_deadline"},
		},
	}

	fields := map[string]any{
		model.FieldStatus:        model.StatusCancelled,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: "hold-expiry",
	}

	return repo.Repository.Update(ctx, fields, filter) //nolint:wrapcheck
}
