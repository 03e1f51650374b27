// Package dto provides data transfer objects for the application layer.
package dto

import (
	"github.com/turtacn/psn/internal/domain/models"
)

// ListDomainsRequest represents the request to list domains.
type ListDomainsRequest struct {
	Limit  int `form:"limit" validate:"gte=0,lte=1000"`
	Offset int `form:"offset" validate:"gte=0"`
}

// ListDomainsResponse represents the response for a list domains request.
type ListDomainsResponse struct {
	Domains    []*models.Domain   `json:"domains"`
	Pagination PaginationResponse `json:"pagination"`
}

// DomainStatsResponse reports how full a domain is.
type DomainStatsResponse struct {
	Domain         string  `json:"domain"`
	Algorithm      string  `json:"algorithm"`
	RecordCount    int64   `json:"record_count"`
	Capacity       float64 `json:"capacity"`
	Threshold      float64 `json:"threshold"`
	FillingRate    float64 `json:"filling_rate"`
	NearExhaustion bool    `json:"near_exhaustion"`
}

// DeleteDomainResponse lists what a delete removed.
type DeleteDomainResponse struct {
	Domains        []string `json:"domains"`
	RecordsDeleted int64    `json:"records_deleted"`
}

// UpdateDomainResponse carries the updated domain and the descendants a cascade rewrote.
type UpdateDomainResponse struct {
	Domain   *models.Domain `json:"domain"`
	Changed  []string       `json:"changed,omitempty"`
	Cascaded []string       `json:"cascaded,omitempty"`
}
