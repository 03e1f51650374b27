package service

import (
	"context"
	"fmt"
	"strings"
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

// DomainAppService defines the application service interface for domain management use cases.
// DomainAppService 域管理应用服务接口。
type DomainAppService interface {
	// CreateDomain resolves and stores a new domain below its optional parent.
	// CreateDomain 解析并创建新域。
	CreateDomain(ctx context.Context, in *models.DomainInput) (*models.Domain, error)

	// GetDomain returns the effective configuration of a domain.
	// GetDomain 获取域的有效配置。
	GetDomain(ctx context.Context, name string) (*models.Domain, error)

	// ListDomains retrieves a page of domains ordered by name.
	// ListDomains 分页列出域。
	ListDomains(ctx context.Context, req *dto.ListDomainsRequest) (*dto.ListDomainsResponse, error)

	// ListChildren lists the direct children of a domain.
	// ListChildren 列出域的直接子域。
	ListChildren(ctx context.Context, name string) ([]*models.Domain, error)

	// UpdateDomain applies patch to the domain named oldName, optionally pushing
	// changed attributes down to inheriting descendants.
	// UpdateDomain 更新域，可选择级联到继承该属性的子域。
	UpdateDomain(ctx context.Context, oldName string, patch *models.DomainInput, cascade bool) (*dto.UpdateDomainResponse, error)

	// DeleteDomain removes a domain; with cascade the whole subtree and its records go too.
	// DeleteDomain 删除域；级联时删除整个子树及其记录。
	DeleteDomain(ctx context.Context, name string, cascade bool) (*dto.DeleteDomainResponse, error)

	// CountRecords returns the number of records stored in a domain.
	// CountRecords 返回域中的记录数。
	CountRecords(ctx context.Context, name string) (int64, error)

	// FillingRate reports record count, capacity and the near-exhaustion flag of a domain.
	// FillingRate 返回域的填充率统计。
	FillingRate(ctx context.Context, name string) (*dto.DomainStatsResponse, error)

	// DomainPath returns the slash separated chain of names from the root to the domain.
	// DomainPath 返回从根到该域的路径。
	DomainPath(ctx context.Context, name string) (string, error)
}

// domainAppServiceImpl is the concrete implementation of the DomainAppService interface.
type domainAppServiceImpl struct {
	domainRepo  repository.DomainRepository
	recordRepo  repository.PseudonymRepository
	tx          repository.Transactor
	resolver    *domainservice.DomainResolver
	planner     *domainservice.CapacityPlanner
	configCache domainservice.DomainConfigCache
	accessCache domainservice.AccessPathCache
	audit       domainservice.AuditService
	logger      logger.Logger
	now         func() time.Time
}

// NewDomainAppService creates a new instance of DomainAppService.
// configCache and accessCache may be nil when the deployment runs without them.
// NewDomainAppService 创建域应用服务实例。
func NewDomainAppService(
	domainRepo repository.DomainRepository,
	recordRepo repository.PseudonymRepository,
	tx repository.Transactor,
	resolver *domainservice.DomainResolver,
	planner *domainservice.CapacityPlanner,
	configCache domainservice.DomainConfigCache,
	accessCache domainservice.AccessPathCache,
	audit domainservice.AuditService,
	log logger.Logger,
) DomainAppService {
	return &domainAppServiceImpl{
		domainRepo:  domainRepo,
		recordRepo:  recordRepo,
		tx:          tx,
		resolver:    resolver,
		planner:     planner,
		configCache: configCache,
		accessCache: accessCache,
		audit:       audit,
		logger:      log.WithComponent("DomainAppService"),
		now:         time.Now,
	}
}

// CreateDomain resolves and stores a new domain.
// CreateDomain 创建域。
func (s *domainAppServiceImpl) CreateDomain(ctx context.Context, in *models.DomainInput) (created *models.Domain, err error) {
	ctx, span := tracer().Start(ctx, "DomainAppService.CreateDomain")
	defer func() { endSpan(span, err) }()

	if in.IsEmpty() {
		return nil, errors.ErrUnprocessableEntity("domain creation request is empty")
	}
	var name, parentName string
	if in.Name != nil {
		name = *in.Name
	}
	if in.SuperDomainName != nil {
		parentName = *in.SuperDomainName
	}
	span.SetAttributes(attribute.String("psn.domain", name))
	s.logger.Info(ctx, "Creating domain",
		logger.String("domain", name),
		logger.String("super_domain", parentName),
	)

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var parent *models.Domain
		if parentName != "" {
			p, err := s.domainRepo.FindByName(ctx, parentName)
			if err != nil {
				return err
			}
			parent = p
		}
		d, err := s.resolver.Resolve(ctx, in, parent, s.now())
		if err != nil {
			return err
		}
		if err := s.domainRepo.Create(ctx, d); err != nil {
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "Failed to create domain", err, name)
		return nil, err
	}

	s.cacheSet(ctx, created)
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.EventTypeDomainCreated, created.Name, "domain created").
		WithMetadata(map[string]interface{}{
			"super_domain": parentName,
			"algorithm":    created.Algorithm,
			"length":       created.PseudonymLength,
		}))
	return created, nil
}

// GetDomain returns the effective configuration, from the config cache when possible.
// GetDomain 获取域配置。
func (s *domainAppServiceImpl) GetDomain(ctx context.Context, name string) (*models.Domain, error) {
	if s.configCache != nil {
		d, err := s.configCache.Get(ctx, name)
		if err != nil {
			s.logger.Warn(ctx, "Domain cache read failed, falling back to the database",
				logger.String("domain", name), logger.Error(err))
		}
		if d != nil {
			return d, nil
		}
	}

	d, err := s.domainRepo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, d)
	return d, nil
}

// ListDomains lists domains ordered by name.
// ListDomains 列出域。
func (s *domainAppServiceImpl) ListDomains(ctx context.Context, req *dto.ListDomainsRequest) (*dto.ListDomainsResponse, error) {
	if req == nil {
		req = &dto.ListDomainsRequest{}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	domains, err := s.domainRepo.FindAll(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return &dto.ListDomainsResponse{
		Domains: domains,
		Pagination: dto.PaginationResponse{
			Limit:  req.Limit,
			Offset: req.Offset,
			Count:  len(domains),
		},
	}, nil
}

// ListChildren lists the direct children of a domain.
func (s *domainAppServiceImpl) ListChildren(ctx context.Context, name string) ([]*models.Domain, error) {
	d, err := s.domainRepo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.domainRepo.FindChildren(ctx, d.ID)
}

// UpdateDomain applies a patch and optionally cascades it.
// Generation attributes are only mutable while every domain they reach holds no records.
// UpdateDomain 更新域配置。
func (s *domainAppServiceImpl) UpdateDomain(ctx context.Context, oldName string, patch *models.DomainInput, cascade bool) (resp *dto.UpdateDomainResponse, err error) {
	ctx, span := tracer().Start(ctx, "DomainAppService.UpdateDomain", trace.WithAttributes(
		attribute.String("psn.domain", oldName),
		attribute.Bool("psn.cascade", cascade),
	))
	defer func() { endSpan(span, err) }()

	if patch.IsEmpty() {
		return nil, errors.ErrUnprocessableEntity("domain update request is empty")
	}
	s.logger.Info(ctx, "Updating domain", logger.String("domain", oldName), logger.Bool("cascade", cascade))

	var (
		updated  *models.Domain
		changed  []string
		cascaded []*models.Domain
		oldPath  string
	)
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		d, err := s.domainRepo.FindByName(ctx, oldName)
		if err != nil {
			return err
		}
		if patch.TouchesGeneration() {
			if err := s.requireEmpty(ctx, d); err != nil {
				return err
			}
		}
		if patch.Name != nil && *patch.Name != d.Name {
			if oldPath, err = s.pathOf(ctx, d); err != nil {
				return err
			}
		}

		res, err := s.resolver.ApplyPatch(ctx, d, patch)
		if err != nil {
			return err
		}
		changed = res.Changed

		if cascade {
			tree, err := s.subtree(ctx, d)
			if err != nil {
				return err
			}
			before := make(map[string]models.Domain)
			for _, child := range domainservice.PreOrder(d, tree) {
				before[child.ID] = *child
			}
			if cascaded, err = s.resolver.Cascade(ctx, d, res.Supplied, tree); err != nil {
				return err
			}
			for _, child := range cascaded {
				prev := before[child.ID]
				if domainservice.GenerationChanged(&prev, child) {
					if err := s.requireEmpty(ctx, child); err != nil {
						return err
					}
				}
				if err := s.domainRepo.Save(ctx, child); err != nil {
					return err
				}
			}
		}

		if err := s.domainRepo.Save(ctx, d); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "Failed to update domain", err, oldName)
		return nil, err
	}

	evicted := []string{oldName, updated.Name}
	cascadedNames := make([]string, 0, len(cascaded))
	for _, child := range cascaded {
		cascadedNames = append(cascadedNames, child.Name)
	}
	s.cacheDelete(ctx, append(evicted, cascadedNames...)...)
	if oldPath != "" && s.accessCache != nil {
		s.accessCache.InvalidateMatching(ctx, domainservice.PathMatcher(oldPath))
	}

	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.EventTypeDomainUpdated, updated.Name, "domain updated").
		WithMetadata(map[string]interface{}{
			"old_name": oldName,
			"changed":  changed,
			"cascaded": cascadedNames,
		}))
	return &dto.UpdateDomainResponse{Domain: updated, Changed: changed, Cascaded: cascadedNames}, nil
}

// DeleteDomain removes a domain. With cascade, descendants are removed children
// first together with their records, all in one transaction.
// DeleteDomain 删除域。
func (s *domainAppServiceImpl) DeleteDomain(ctx context.Context, name string, cascade bool) (resp *dto.DeleteDomainResponse, err error) {
	ctx, span := tracer().Start(ctx, "DomainAppService.DeleteDomain", trace.WithAttributes(
		attribute.String("psn.domain", name),
		attribute.Bool("psn.cascade", cascade),
	))
	defer func() { endSpan(span, err) }()

	s.logger.Info(ctx, "Deleting domain", logger.String("domain", name), logger.Bool("cascade", cascade))

	resp = &dto.DeleteDomainResponse{}
	var path string
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		d, err := s.domainRepo.FindByName(ctx, name)
		if err != nil {
			return err
		}
		if path, err = s.pathOf(ctx, d); err != nil {
			return err
		}
		tree, err := s.subtree(ctx, d)
		if err != nil {
			return err
		}
		if !cascade {
			if len(tree[d.ID]) > 0 {
				return errors.ErrUnprocessableEntity(fmt.Sprintf("domain %s has child domains; delete them first or cascade", d.Name))
			}
			if err := s.requireEmpty(ctx, d); err != nil {
				return err
			}
		}

		for _, victim := range append(domainservice.PostOrder(d, tree), d) {
			n, err := s.recordRepo.DeleteByDomain(ctx, victim.ID)
			if err != nil {
				return err
			}
			if err := s.domainRepo.Delete(ctx, victim.ID); err != nil {
				return err
			}
			resp.RecordsDeleted += n
			resp.Domains = append(resp.Domains, victim.Name)
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "Failed to delete domain", err, name)
		return nil, err
	}

	s.cacheDelete(ctx, resp.Domains...)
	if s.accessCache != nil {
		s.accessCache.InvalidateMatching(ctx, domainservice.PathMatcher(path))
	}

	s.logger.Info(ctx, "Domain deleted",
		logger.String("domain", name),
		logger.Int("domains", len(resp.Domains)),
		logger.Int64("records", resp.RecordsDeleted),
	)
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.EventTypeDomainDeleted, name, "domain deleted").
		WithMetadata(map[string]interface{}{
			"cascade":         cascade,
			"domains":         resp.Domains,
			"records_deleted": resp.RecordsDeleted,
		}))
	return resp, nil
}

// CountRecords returns the number of records in a domain.
func (s *domainAppServiceImpl) CountRecords(ctx context.Context, name string) (int64, error) {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return 0, err
	}
	return s.recordRepo.CountByDomain(ctx, d.ID)
}

// FillingRate reports how close a domain is to exhaustion.
// FillingRate 返回域的填充率。
func (s *domainAppServiceImpl) FillingRate(ctx context.Context, name string) (*dto.DomainStatsResponse, error) {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	count, err := s.recordRepo.CountByDomain(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	stats := &dto.DomainStatsResponse{
		Domain:         d.Name,
		Algorithm:      string(d.Algorithm),
		RecordCount:    count,
		Capacity:       s.planner.Capacity(d),
		Threshold:      s.planner.Threshold(d),
		FillingRate:    s.planner.FillingRate(d, count),
		NearExhaustion: s.planner.IsNearExhaustion(d, count),
	}
	if stats.NearExhaustion {
		s.logger.Warn(ctx, "Domain is close to exhaustion",
			logger.String("domain", d.Name),
			logger.Int64("records", count),
			logger.Float64("threshold", stats.Threshold),
		)
	}
	return stats, nil
}

// DomainPath returns the path of a domain from the root.
func (s *domainAppServiceImpl) DomainPath(ctx context.Context, name string) (string, error) {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return "", err
	}
	return s.pathOf(ctx, d)
}

// pathOf walks the parent chain up to the root.
func (s *domainAppServiceImpl) pathOf(ctx context.Context, d *models.Domain) (string, error) {
	names := []string{d.Name}
	seen := map[string]bool{d.ID: true}
	for cur := d; !cur.IsRoot(); {
		parent, err := s.domainRepo.FindByID(ctx, *cur.SuperDomainID)
		if err != nil {
			return "", err
		}
		if seen[parent.ID] {
			return "", errors.ErrInternal("domain hierarchy contains a cycle at " + parent.Name)
		}
		seen[parent.ID] = true
		names = append(names, parent.Name)
		cur = parent
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/"), nil
}

// subtree loads every descendant of root, level by level.
func (s *domainAppServiceImpl) subtree(ctx context.Context, root *models.Domain) (domainservice.DomainTree, error) {
	tree := make(domainservice.DomainTree)
	queue := []*models.Domain{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := s.domainRepo.FindChildren(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		if len(children) > 0 {
			tree[parent.ID] = children
			queue = append(queue, children...)
		}
	}
	return tree, nil
}

func (s *domainAppServiceImpl) requireEmpty(ctx context.Context, d *models.Domain) error {
	n, err := s.recordRepo.CountByDomain(ctx, d.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.ErrUnprocessableEntity(fmt.Sprintf("domain %s holds %d records", d.Name, n))
	}
	return nil
}

func (s *domainAppServiceImpl) cacheSet(ctx context.Context, d *models.Domain) {
	if s.configCache == nil {
		return
	}
	if err := s.configCache.Set(ctx, d); err != nil {
		s.logger.Warn(ctx, "Failed to cache domain", logger.String("domain", d.Name), logger.Error(err))
	}
}

func (s *domainAppServiceImpl) cacheDelete(ctx context.Context, names ...string) {
	if s.configCache == nil || len(names) == 0 {
		return
	}
	if err := s.configCache.Delete(ctx, names...); err != nil {
		s.logger.Warn(ctx, "Failed to evict cached domains", logger.Any("domains", names), logger.Error(err))
	}
}

func (s *domainAppServiceImpl) logFailure(ctx context.Context, msg string, err error, domain string) {
	if errors.ShouldLogError(err) {
		s.logger.Error(ctx, msg, err, logger.String("domain", domain))
		return
	}
	s.logger.Warn(ctx, msg, logger.String("domain", domain), logger.Error(err))
}
