package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/psn/internal/application/dto"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/repository"
	domainservice "github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
	"github.com/turtacn/psn/pkg/utils"
)

// PseudonymAppService defines the application service interface for pseudonym use cases.
// PseudonymAppService 假名应用服务接口。
type PseudonymAppService interface {
	// Allocate returns the pseudonym of an identifier, creating one when needed.
	// Allocate 为标识符分配假名。
	Allocate(ctx context.Context, domainName string, req *dto.AllocateRequest) (*dto.AllocateResponse, error)

	// AddCheckDigit appends the domain check symbol to raw.
	// AddCheckDigit 追加校验位。
	AddCheckDigit(ctx context.Context, domainName, raw string) (*dto.CheckDigitResponse, error)

	// ValidatePseudonym verifies the check symbol of a pseudonym.
	// ValidatePseudonym 校验假名的校验位。
	ValidatePseudonym(ctx context.Context, domainName, pseudonym string) (*dto.ValidationResponse, error)

	// CreateBatch stores many records in one transaction, skipping those that violate uniqueness.
	// CreateBatch 批量创建记录。
	CreateBatch(ctx context.Context, domainName string, items []dto.AllocateRequest) (*repository.BatchResult, error)

	// UpdateBatch applies many updates in one transaction.
	// UpdateBatch 批量更新记录。
	UpdateBatch(ctx context.Context, domainName string, items []models.PseudonymUpdate) (*repository.BatchResult, error)

	// DeleteBatch removes many records in one transaction.
	// DeleteBatch 批量删除记录。
	DeleteBatch(ctx context.Context, domainName string, keys []models.PseudonymKey) (*repository.BatchResult, error)

	// Lookup lists the records of (identifier, idType).
	// Lookup 按标识符查询记录。
	Lookup(ctx context.Context, domainName, identifier, idType string) ([]*models.Pseudonym, error)

	// Resolve returns the record holding a pseudonym.
	// Resolve 按假名反查记录。
	Resolve(ctx context.Context, domainName, pseudonym string) (*models.Pseudonym, error)

	// Update applies a partial update to one record.
	// Update 更新单条记录。
	Update(ctx context.Context, domainName string, update models.PseudonymUpdate) error

	// Delete removes one record. It reports whether a record was removed.
	// Delete 删除单条记录。
	Delete(ctx context.Context, domainName string, key models.PseudonymKey) (bool, error)
}

// pseudonymAppServiceImpl is the concrete implementation of the PseudonymAppService interface.
type pseudonymAppServiceImpl struct {
	domains      DomainAppService
	domainRepo   repository.DomainRepository
	recordRepo   repository.PseudonymRepository
	tx           repository.Transactor
	planner      *domainservice.CapacityPlanner
	validity     *domainservice.ValidityResolver
	metrics      domainservice.Metrics
	audit        domainservice.AuditService
	logger       logger.Logger
	maxBatchSize int
	now          func() time.Time
}

// NewPseudonymAppService creates a new instance of PseudonymAppService.
// NewPseudonymAppService 创建假名应用服务实例。
func NewPseudonymAppService(
	domains DomainAppService,
	domainRepo repository.DomainRepository,
	recordRepo repository.PseudonymRepository,
	tx repository.Transactor,
	planner *domainservice.CapacityPlanner,
	validity *domainservice.ValidityResolver,
	metrics domainservice.Metrics,
	audit domainservice.AuditService,
	maxBatchSize int,
	log logger.Logger,
) PseudonymAppService {
	if metrics == nil {
		metrics = domainservice.NoopMetrics{}
	}
	if maxBatchSize <= 0 {
		maxBatchSize = constants.DefaultMaxBatchSize
	}
	return &pseudonymAppServiceImpl{
		domains:      domains,
		domainRepo:   domainRepo,
		recordRepo:   recordRepo,
		tx:           tx,
		planner:      planner,
		validity:     validity,
		metrics:      metrics,
		audit:        audit,
		logger:       log.WithComponent("PseudonymAppService"),
		maxBatchSize: maxBatchSize,
		now:          time.Now,
	}
}

// Allocate returns the existing record of the identifier or creates a new one.
// Allocate 分配假名。
func (s *pseudonymAppServiceImpl) Allocate(ctx context.Context, domainName string, req *dto.AllocateRequest) (resp *dto.AllocateResponse, err error) {
	ctx, span := tracer().Start(ctx, "PseudonymAppService.Allocate", trace.WithAttributes(
		attribute.String("psn.domain", domainName),
	))
	defer func() { endSpan(span, err) }()

	if req == nil {
		return nil, errors.ErrBadRequest("allocation request is empty")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	d, err := s.activeDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("psn.algorithm", string(d.Algorithm)))

	if !d.MultiplePsnAllowed || d.Algorithm.IsDeterministic() {
		existing, err := s.recordRepo.FindByIdentifier(ctx, d.ID, req.Identifier, req.IDType)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return &dto.AllocateResponse{Record: existing[0], Created: false}, nil
		}
	}

	record, err := s.newRecord(d, req)
	if err != nil {
		return nil, err
	}
	minter, err := domainservice.NewMinter(d)
	if err != nil {
		return nil, err
	}

	switch {
	case req.Pseudonym != nil:
		record.Value = minter.WithPrefix(*req.Pseudonym, req.OmitPrefix)
		err = s.insertOnce(ctx, d, record)
	case d.Algorithm == constants.AlgorithmConsecutive:
		err = s.insertConsecutive(ctx, d, minter, record, req.OmitPrefix)
	case d.Algorithm.IsRandom():
		err = s.insertRandom(ctx, d, minter, record, req.OmitPrefix)
	default:
		record.Value, err = minter.Mint(domainservice.GenerateInput{Identifier: req.Identifier, IDType: req.IDType}, req.OmitPrefix)
		if err == nil && record.Value == "" {
			err = errors.ErrInternal("generator returned an empty pseudonym")
		}
		if err == nil {
			err = s.insertOnce(ctx, d, record)
		}
	}
	if errors.IsDuplicateIdentifier(err) {
		// A concurrent allocation stored the identifier first.
		existing, findErr := s.recordRepo.FindByIdentifier(ctx, d.ID, req.Identifier, req.IDType)
		if findErr == nil && len(existing) > 0 {
			return &dto.AllocateResponse{Record: existing[0], Created: false}, nil
		}
	}
	if err != nil {
		if errors.ShouldLogError(err) {
			s.logger.Error(ctx, "Pseudonym allocation failed", err, logger.String("domain", d.Name))
		}
		return nil, err
	}

	s.metrics.RecordPseudonymCreated(d.Algorithm)
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.EventTypePseudonymCreated, d.Name, "pseudonym created").
		WithMetadata(map[string]interface{}{
			"id_type":    record.IDType,
			"pseudonym":  record.Value,
			"pre_minted": req.Pseudonym != nil,
		}))
	return &dto.AllocateResponse{Record: record, Created: true}, nil
}

// insertOnce stores record and turns a uniqueness conflict into its error.
func (s *pseudonymAppServiceImpl) insertOnce(ctx context.Context, d *models.Domain, record *models.Pseudonym) error {
	outcome, err := s.recordRepo.Insert(ctx, record, d.MultiplePsnAllowed)
	if err != nil {
		return err
	}
	return outcomeError(d, record, outcome)
}

// insertConsecutive draws the next counter value and stores the record in one
// transaction. A counter value already taken by a pre-minted pseudonym is skipped
// and the next one tried, within the retry budget.
func (s *pseudonymAppServiceImpl) insertConsecutive(ctx context.Context, d *models.Domain, minter *domainservice.Minter, record *models.Pseudonym, omitPrefix bool) error {
	budget := s.planner.RetryBudget()
	for attempt := 1; attempt <= budget; attempt++ {
		var outcome repository.InsertOutcome
		err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
			counter, err := s.domainRepo.NextConsecutiveValue(ctx, d.ID)
			if err != nil {
				return err
			}
			value, err := minter.Mint(domainservice.GenerateInput{Counter: counter}, omitPrefix)
			if err != nil {
				if errors.IsInsufficientCapacity(err) {
					s.metrics.RecordCapacityExhausted(d.Name)
					return errors.ErrInsufficientCapacity(d.Name, attempt).WithMetadata("counter", counter)
				}
				return err
			}
			record.Value = value
			outcome, err = s.recordRepo.Insert(ctx, record, d.MultiplePsnAllowed)
			if err != nil {
				return err
			}
			if outcome == repository.InsertDuplicateIdentifier {
				return outcomeError(d, record, outcome)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if outcome == repository.InsertCreated {
			return nil
		}
		s.metrics.RecordCollision(d.Algorithm)
		s.logger.Debug(ctx, "Consecutive value already taken, advancing",
			logger.String("domain", d.Name),
			logger.Int("attempt", attempt),
		)
	}
	return errors.ErrDuplicatePseudonym(d.Name, record.Value)
}

// insertRandom draws a fresh value for every attempt until one is stored or the
// retry budget is spent.
func (s *pseudonymAppServiceImpl) insertRandom(ctx context.Context, d *models.Domain, minter *domainservice.Minter, record *models.Pseudonym, omitPrefix bool) error {
	budget := s.planner.RetryBudget()
	for attempt := 1; attempt <= budget; attempt++ {
		value, err := minter.Mint(domainservice.GenerateInput{}, omitPrefix)
		if err != nil {
			return err
		}
		record.Value = value
		outcome, err := s.recordRepo.Insert(ctx, record, d.MultiplePsnAllowed)
		if err != nil {
			return err
		}
		switch outcome {
		case repository.InsertCreated:
			return nil
		case repository.InsertDuplicateIdentifier:
			return outcomeError(d, record, outcome)
		}
		s.metrics.RecordCollision(d.Algorithm)
		s.logger.Debug(ctx, "Random pseudonym collided, retrying",
			logger.String("domain", d.Name),
			logger.Int("attempt", attempt),
		)
	}

	s.metrics.RecordCapacityExhausted(d.Name)
	fields := []logger.Field{
		logger.String("domain", d.Name),
		logger.Int("attempts", budget),
	}
	if count, err := s.recordRepo.CountByDomain(ctx, d.ID); err == nil {
		fields = append(fields, logger.Int64("records", count))
		if s.planner.IsNearExhaustion(d, count) {
			s.logger.Warn(ctx, "Domain is close to exhaustion; widen the alphabet or the pseudonym length", fields...)
		}
	}
	err := errors.ErrInsufficientCapacity(d.Name, budget)
	s.logger.Error(ctx, "No unused pseudonym found within the retry budget", err, fields...)
	return err
}

func outcomeError(d *models.Domain, record *models.Pseudonym, outcome repository.InsertOutcome) error {
	switch outcome {
	case repository.InsertDuplicateIdentifier:
		return errors.ErrDuplicateIdentifier(d.Name, record.Identifier, record.IDType)
	case repository.InsertDuplicatePseudonym:
		return errors.ErrDuplicatePseudonym(d.Name, record.Value)
	}
	return nil
}

// AddCheckDigit appends the check symbol of the domain alphabet to raw.
func (s *pseudonymAppServiceImpl) AddCheckDigit(ctx context.Context, domainName, raw string) (*dto.CheckDigitResponse, error) {
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	if !d.AddCheckDigit {
		return nil, errors.ErrUnprocessableEntity("domain " + d.Name + " does not use check digits")
	}
	if raw == "" {
		return nil, errors.ErrBadRequest("value is required")
	}
	minter, err := domainservice.NewMinter(d)
	if err != nil {
		return nil, err
	}
	value, err := minter.AddCheckDigit(raw)
	if err != nil {
		return nil, err
	}
	return &dto.CheckDigitResponse{Raw: raw, Pseudonym: value}, nil
}

// ValidatePseudonym verifies the check symbol. Domains without check digits accept every value.
func (s *pseudonymAppServiceImpl) ValidatePseudonym(ctx context.Context, domainName, pseudonym string) (*dto.ValidationResponse, error) {
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	minter, err := domainservice.NewMinter(d)
	if err != nil {
		return nil, err
	}
	valid, err := minter.Validate(pseudonym)
	if err != nil {
		return nil, err
	}
	return &dto.ValidationResponse{Pseudonym: pseudonym, Valid: valid}, nil
}

// CreateBatch generates missing pseudonyms and stores all items in one statement.
// CreateBatch 批量创建。
func (s *pseudonymAppServiceImpl) CreateBatch(ctx context.Context, domainName string, items []dto.AllocateRequest) (result *repository.BatchResult, err error) {
	ctx, span := tracer().Start(ctx, "PseudonymAppService.CreateBatch", trace.WithAttributes(
		attribute.String("psn.domain", domainName),
		attribute.Int("psn.batch_size", len(items)),
	))
	defer func() { endSpan(span, err) }()

	if err := s.checkBatchSize(len(items)); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &repository.BatchResult{}, nil
	}
	d, err := s.activeDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	minter, err := domainservice.NewMinter(d)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		records := make([]*models.Pseudonym, 0, len(items))
		for i := range items {
			item := &items[i]
			if err := utils.ValidateStruct(item); err != nil {
				return err.WithMetadata("item", i)
			}
			record, err := s.newRecord(d, item)
			if err != nil {
				return err
			}
			switch {
			case item.Pseudonym != nil:
				record.Value = minter.WithPrefix(*item.Pseudonym, item.OmitPrefix)
			case d.Algorithm == constants.AlgorithmConsecutive:
				counter, err := s.domainRepo.NextConsecutiveValue(ctx, d.ID)
				if err != nil {
					return err
				}
				if record.Value, err = minter.Mint(domainservice.GenerateInput{Counter: counter}, item.OmitPrefix); err != nil {
					return err
				}
			default:
				if record.Value, err = minter.Mint(domainservice.GenerateInput{Identifier: item.Identifier, IDType: item.IDType}, item.OmitPrefix); err != nil {
					return err
				}
			}
			records = append(records, record)
		}
		result, err = s.recordRepo.InsertBatch(ctx, d.ID, records, d.MultiplePsnAllowed)
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "Batch insert failed", logger.String("domain", d.Name), logger.Error(err))
		return nil, err
	}

	s.finishBatch(ctx, d, "create", constants.EventTypeBatchCreated, result)
	return result, nil
}

// UpdateBatch applies every update in one transaction. Validity changes are clamped into the domain window.
func (s *pseudonymAppServiceImpl) UpdateBatch(ctx context.Context, domainName string, items []models.PseudonymUpdate) (result *repository.BatchResult, err error) {
	ctx, span := tracer().Start(ctx, "PseudonymAppService.UpdateBatch", trace.WithAttributes(
		attribute.String("psn.domain", domainName),
		attribute.Int("psn.batch_size", len(items)),
	))
	defer func() { endSpan(span, err) }()

	if err := s.checkBatchSize(len(items)); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &repository.BatchResult{}, nil
	}
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if err := s.checkUpdate(d, &items[i]); err != nil {
			if psnErr, ok := errors.AsPSNError(err); ok {
				return nil, psnErr.WithMetadata("item", i)
			}
			return nil, err
		}
	}

	result, err = s.recordRepo.UpdateBatch(ctx, d.ID, items)
	if err != nil {
		return nil, err
	}
	s.finishBatch(ctx, d, "update", constants.EventTypeBatchUpdated, result)
	return result, nil
}

// DeleteBatch removes every selected record in one transaction.
func (s *pseudonymAppServiceImpl) DeleteBatch(ctx context.Context, domainName string, keys []models.PseudonymKey) (result *repository.BatchResult, err error) {
	ctx, span := tracer().Start(ctx, "PseudonymAppService.DeleteBatch", trace.WithAttributes(
		attribute.String("psn.domain", domainName),
		attribute.Int("psn.batch_size", len(keys)),
	))
	defer func() { endSpan(span, err) }()

	if err := s.checkBatchSize(len(keys)); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return &repository.BatchResult{}, nil
	}
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		if key.Identifier == "" || key.IDType == "" {
			return nil, errors.ErrBadRequest(fmt.Sprintf("item %d: identifier and id_type are required", i))
		}
	}

	result, err = s.recordRepo.DeleteBatch(ctx, d.ID, keys)
	if err != nil {
		return nil, err
	}
	s.finishBatch(ctx, d, "delete", constants.EventTypeBatchDeleted, result)
	return result, nil
}

// Lookup lists the records of (identifier, idType).
func (s *pseudonymAppServiceImpl) Lookup(ctx context.Context, domainName, identifier, idType string) ([]*models.Pseudonym, error) {
	if identifier == "" || idType == "" {
		return nil, errors.ErrBadRequest("identifier and id_type are required")
	}
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	records, err := s.recordRepo.FindByIdentifier(ctx, d.ID, identifier, idType)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.ErrNotFound("pseudonym", d.Name+"/"+idType)
	}
	return records, nil
}

// Resolve returns the record holding pseudonym.
func (s *pseudonymAppServiceImpl) Resolve(ctx context.Context, domainName, pseudonym string) (*models.Pseudonym, error) {
	if pseudonym == "" {
		return nil, errors.ErrBadRequest("pseudonym is required")
	}
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return nil, err
	}
	return s.recordRepo.FindByPseudonym(ctx, d.ID, pseudonym)
}

// Update applies a partial update to one record; an absent record is NotFound.
func (s *pseudonymAppServiceImpl) Update(ctx context.Context, domainName string, update models.PseudonymUpdate) error {
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return err
	}
	if err := s.checkUpdate(d, &update); err != nil {
		return err
	}
	n, err := s.recordRepo.Update(ctx, d.ID, update.Old, update.New)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrNotFound("pseudonym", d.Name+"/"+update.Old.IDType)
	}
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.EventTypePseudonymUpdated, d.Name, "pseudonym updated").
		WithMetadata(map[string]interface{}{"id_type": update.Old.IDType}))
	return nil
}

// Delete removes one record. Deleting an absent record succeeds.
func (s *pseudonymAppServiceImpl) Delete(ctx context.Context, domainName string, key models.PseudonymKey) (bool, error) {
	if key.Identifier == "" || key.IDType == "" {
		return false, errors.ErrBadRequest("identifier and id_type are required")
	}
	d, err := s.domains.GetDomain(ctx, domainName)
	if err != nil {
		return false, err
	}
	n, err := s.recordRepo.Delete(ctx, d.ID, key)
	if err != nil {
		return false, err
	}
	if n > 0 {
		emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.EventTypePseudonymDeleted, d.Name, "pseudonym deleted").
			WithMetadata(map[string]interface{}{"id_type": key.IDType}))
	}
	return n > 0, nil
}

// activeDomain loads a domain and checks that it accepts new records now.
func (s *pseudonymAppServiceImpl) activeDomain(ctx context.Context, name string) (*models.Domain, error) {
	d, err := s.domains.GetDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	if !d.IsValidAt(s.now()) {
		return nil, errors.ErrUnprocessableEntity("domain " + d.Name + " is outside its validity period")
	}
	return d, nil
}

func (s *pseudonymAppServiceImpl) newRecord(d *models.Domain, req *dto.AllocateRequest) (*models.Pseudonym, error) {
	window, err := s.validity.ResolveRecord(d, domainservice.ValidityInput{
		ValidFrom:    req.ValidFrom,
		ValidTo:      req.ValidTo,
		ValidityTime: req.ValidityTime,
	})
	if err != nil {
		return nil, err
	}
	return &models.Pseudonym{
		DomainID:           d.ID,
		Identifier:         req.Identifier,
		IDType:             req.IDType,
		MultipleAllowed:    d.MultiplePsnAllowed,
		ValidFrom:          window.ValidFrom,
		ValidFromInherited: window.ValidFromInherited,
		ValidTo:            window.ValidTo,
		ValidToInherited:   window.ValidToInherited,
	}, nil
}

func (s *pseudonymAppServiceImpl) checkUpdate(d *models.Domain, update *models.PseudonymUpdate) error {
	if update.Old.Identifier == "" || update.Old.IDType == "" {
		return errors.ErrBadRequest("identifier and id_type of the record are required")
	}
	if update.New.IsEmpty() {
		return errors.ErrUnprocessableEntity("update changes nothing")
	}
	return s.validity.ClampPatch(d, &update.New)
}

func (s *pseudonymAppServiceImpl) checkBatchSize(n int) error {
	if n > s.maxBatchSize {
		return errors.ErrUnprocessableEntity(fmt.Sprintf("batch of %d items exceeds the limit of %d", n, s.maxBatchSize))
	}
	return nil
}

func (s *pseudonymAppServiceImpl) finishBatch(ctx context.Context, d *models.Domain, operation string, event constants.AuditEventType, result *repository.BatchResult) {
	s.metrics.RecordBatchItems(operation, result.Succeeded, result.Ignored)
	if operation == "create" {
		for i := 0; i < result.Succeeded; i++ {
			s.metrics.RecordPseudonymCreated(d.Algorithm)
		}
	}
	s.logger.Info(ctx, "Batch completed",
		logger.String("domain", d.Name),
		logger.String("operation", operation),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("ignored", result.Ignored),
	)
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(event, d.Name, "batch "+operation).
		WithMetadata(result))
}
