package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// CrawlOptions is the validated per-job configuration record. Every option is
// explicit and range-checked at the registry boundary.
type CrawlOptions struct {
	MaxDepth              int  `json:"max_depth" validate:"min=0,max=20"`
	MaxPages              int  `json:"max_pages" validate:"min=1,max=5000"`
	IncludeCodeBlocks     bool `json:"include_code_blocks"`
	ExcludeNavigation     bool `json:"exclude_navigation"`
	FollowExternalLinks   bool `json:"follow_external_links"`
	IncludeAnchors        bool `json:"include_anchors"`
	TimeoutMs             int  `json:"timeout_ms" validate:"min=1,max=3600000"`
	PageTimeoutMs         int  `json:"page_timeout_ms" validate:"min=1,max=120000"`
	RateLimitMs           int  `json:"rate_limit_ms" validate:"min=0,max=60000"`
	MaxConcurrentRequests int  `json:"max_concurrent_requests" validate:"min=1,max=10"`
	MaxRetries            int  `json:"max_retries" validate:"min=0,max=10"`
	QualityThreshold      int  `json:"quality_threshold" validate:"min=0,max=100"`
	ForceRefresh          bool `json:"force_refresh"`
	RespectRobots         bool `json:"respect_robots"`
	UseSitemap            bool `json:"use_sitemap"`
}

// DefaultCrawlOptions returns the documented option defaults
func DefaultCrawlOptions() CrawlOptions {
	return CrawlOptions{
		MaxDepth:              3,
		MaxPages:              50,
		IncludeCodeBlocks:     true,
		ExcludeNavigation:     true,
		FollowExternalLinks:   false,
		IncludeAnchors:        false,
		TimeoutMs:             300000,
		PageTimeoutMs:         8000,
		RateLimitMs:           1000,
		MaxConcurrentRequests: 3,
		MaxRetries:            3,
		QualityThreshold:      20,
		ForceRefresh:          false,
		RespectRobots:         true,
		UseSitemap:            true,
	}
}

// CrawlOptionsPatch carries client-supplied overrides. Pointer fields
// distinguish "absent" from zero values so boolean defaults survive.
type CrawlOptionsPatch struct {
	MaxDepth              *int  `json:"max_depth,omitempty"`
	MaxPages              *int  `json:"max_pages,omitempty"`
	IncludeCodeBlocks     *bool `json:"include_code_blocks,omitempty"`
	ExcludeNavigation     *bool `json:"exclude_navigation,omitempty"`
	FollowExternalLinks   *bool `json:"follow_external_links,omitempty"`
	IncludeAnchors        *bool `json:"include_anchors,omitempty"`
	TimeoutMs             *int  `json:"timeout_ms,omitempty"`
	PageTimeoutMs         *int  `json:"page_timeout_ms,omitempty"`
	RateLimitMs           *int  `json:"rate_limit_ms,omitempty"`
	MaxConcurrentRequests *int  `json:"max_concurrent_requests,omitempty"`
	MaxRetries            *int  `json:"max_retries,omitempty"`
	QualityThreshold      *int  `json:"quality_threshold,omitempty"`
	ForceRefresh          *bool `json:"force_refresh,omitempty"`
	RespectRobots         *bool `json:"respect_robots,omitempty"`
	UseSitemap            *bool `json:"use_sitemap,omitempty"`
}

// Apply merges the patch over a base options record
func (p *CrawlOptionsPatch) Apply(base CrawlOptions) CrawlOptions {
	if p == nil {
		return base
	}
	if p.MaxDepth != nil {
		base.MaxDepth = *p.MaxDepth
	}
	if p.MaxPages != nil {
		base.MaxPages = *p.MaxPages
	}
	if p.IncludeCodeBlocks != nil {
		base.IncludeCodeBlocks = *p.IncludeCodeBlocks
	}
	if p.ExcludeNavigation != nil {
		base.ExcludeNavigation = *p.ExcludeNavigation
	}
	if p.FollowExternalLinks != nil {
		base.FollowExternalLinks = *p.FollowExternalLinks
	}
	if p.IncludeAnchors != nil {
		base.IncludeAnchors = *p.IncludeAnchors
	}
	if p.TimeoutMs != nil {
		base.TimeoutMs = *p.TimeoutMs
	}
	if p.PageTimeoutMs != nil {
		base.PageTimeoutMs = *p.PageTimeoutMs
	}
	if p.RateLimitMs != nil {
		base.RateLimitMs = *p.RateLimitMs
	}
	if p.MaxConcurrentRequests != nil {
		base.MaxConcurrentRequests = *p.MaxConcurrentRequests
	}
	if p.MaxRetries != nil {
		base.MaxRetries = *p.MaxRetries
	}
	if p.QualityThreshold != nil {
		base.QualityThreshold = *p.QualityThreshold
	}
	if p.ForceRefresh != nil {
		base.ForceRefresh = *p.ForceRefresh
	}
	if p.RespectRobots != nil {
		base.RespectRobots = *p.RespectRobots
	}
	if p.UseSitemap != nil {
		base.UseSitemap = *p.UseSitemap
	}
	return base
}

var optionsValidator = validator.New()

// Validate range-checks the options record
func (o *CrawlOptions) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("invalid crawl options: %w", err)
	}
	return nil
}

// JobDeadline returns the wall-clock deadline duration
func (o *CrawlOptions) JobDeadline() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// PageTimeout returns the per-fetch timeout
func (o *CrawlOptions) PageTimeout() time.Duration {
	return time.Duration(o.PageTimeoutMs) * time.Millisecond
}

// RateLimit returns the minimum gap between fetches per host
func (o *CrawlOptions) RateLimit() time.Duration {
	return time.Duration(o.RateLimitMs) * time.Millisecond
}
