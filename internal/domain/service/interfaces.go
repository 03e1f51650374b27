package service

import (
	"context"

	"github.com/turtacn/psn/internal/domain/models"
)

// AuditService defines the interface for recording audit events of mutating operations.
// Failures are reported to the caller, which logs and swallows them.
// AuditService 定义了记录变更操作审计事件的接口。
//
//go:generate mockery --name AuditService --output mocks --outpkg mocks
type AuditService interface {
	// LogEvent records an audit event.
	// LogEvent 记录审计事件。
	LogEvent(ctx context.Context, event models.AuditEvent) error
}

// IdentityProvider resolves the domain paths a subject is authorized for.
// It is consulted only on an access cache miss.
// IdentityProvider 解析主体被授权访问的域路径。
//
//go:generate mockery --name IdentityProvider --output mocks --outpkg mocks
type IdentityProvider interface {
	// GetAuthorizationPaths returns the set of paths granted to the subject.
	// GetAuthorizationPaths 返回授予主体的路径集合。
	GetAuthorizationPaths(ctx context.Context, subject string) ([]string, error)
}

// AccessPathCache fronts the IdentityProvider with a TTL cache.
// AccessPathCache 在 IdentityProvider 前提供带 TTL 的缓存。
//
//go:generate mockery --name AccessPathCache --output mocks --outpkg mocks
type AccessPathCache interface {
	// Get returns the cached paths of a subject, populating the entry on a miss.
	// Get 返回主体的缓存路径，未命中时填充。
	Get(ctx context.Context, subject string) []string

	// Invalidate drops the subject entry when force is set or a cached path matches, then repopulates it.
	// Invalidate 在 force 为真或任一缓存路径匹配时删除条目，然后重新填充。
	Invalidate(ctx context.Context, subject string, match func(path string) bool, force bool)

	// InvalidateMatching applies Invalidate to every cached subject.
	// InvalidateMatching 对所有已缓存主体执行 Invalidate。
	InvalidateMatching(ctx context.Context, match func(path string) bool)
}

// DomainConfigCache stores resolved domain configurations outside the database.
// A miss is reported as (nil, nil).
// DomainConfigCache 在数据库之外缓存已解析的域配置。
//
//go:generate mockery --name DomainConfigCache --output mocks --outpkg mocks
type DomainConfigCache interface {
	Get(ctx context.Context, name string) (*models.Domain, error)
	Set(ctx context.Context, domain *models.Domain) error
	Delete(ctx context.Context, names ...string) error
}
