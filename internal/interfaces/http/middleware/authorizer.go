package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// DomainPathResolver maps a domain name to its slash separated path from the root.
type DomainPathResolver interface {
	DomainPath(ctx context.Context, name string) (string, error)
}

// Authorizer checks that the request subject holds a path covering the target domain.
// Authorizer 校验请求主体持有覆盖目标域的授权路径。
type Authorizer struct {
	access  service.AccessPathCache
	domains DomainPathResolver
	prefix  string
	logger  logger.Logger
}

// NewAuthorizer creates an Authorizer. pathPrefix is removed from every path
// returned by the identity provider before matching.
func NewAuthorizer(access service.AccessPathCache, domains DomainPathResolver, pathPrefix string, log logger.Logger) *Authorizer {
	return &Authorizer{
		access:  access,
		domains: domains,
		prefix:  strings.Trim(pathPrefix, "/"),
		logger:  log,
	}
}

// Allowed reports whether the subject bound to ctx may act on domainPath.
func (a *Authorizer) Allowed(ctx context.Context, domainPath string) bool {
	subject := Subject(ctx)
	if subject == "" {
		return false
	}
	return service.HasAccess(a.strip(a.access.Get(ctx, subject)), domainPath)
}

// RequireDomain guards routes addressing the domain named by the given path parameter.
func (a *Authorizer) RequireDomain(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		name := c.Param(param)

		path, err := a.domains.DomainPath(ctx, name)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !a.Allowed(ctx, path) {
			a.logger.Warn(ctx, "Domain access denied",
				logger.String("subject", Subject(ctx)),
				logger.String("domain", name))
			abortWithError(c, errors.ErrForbidden(Subject(ctx), name))
			return
		}
		c.Next()
	}
}

func (a *Authorizer) strip(paths []string) []string {
	if a.prefix == "" {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.Trim(p, "/")
		if p == a.prefix {
			continue
		}
		if rest, ok := strings.CutPrefix(p, a.prefix+"/"); ok {
			out = append(out, rest)
		}
	}
	return out
}
