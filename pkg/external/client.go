// Package external looks patients up in a tenant's system of record.
package external

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/expressions"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/httpclient"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/normalizers"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const (
	clientsPath      = "/clients"
	phoneFilterParam = "phone_filter"
)

var (
	// ErrNoCredentials is returned when the tenant has no usable external access
	ErrNoCredentials = errors.New("tenant has no external credentials")
	// ErrUnexpectedStatus is returned for non-2xx responses other than 404
	ErrUnexpectedStatus = errors.New("unexpected status from external system")
	// ErrMalformedPayload is returned when the response cannot be read as records
	ErrMalformedPayload = errors.New("malformed external payload")
)

// ExternalRecord is a patient as held by the tenant's system of record.
type ExternalRecord struct {
	ExternalID            string
	Name                  string
	Phone                 string
	NationalID            string
	AssociationCategory   string
	ResponsibleName       string
	ResponsibleNationalID string
	Attributes            map[string]any
}

// Client queries the tenant's `/clients` endpoint.
type Client struct {
	http    *httpclient.Client
	eval    *expressions.Evaluator
	logger  ectologger.Logger
	timeout time.Duration
}

// NewClient creates an external record client. timeout bounds one whole lookup.
func NewClient(httpClient *httpclient.Client, eval *expressions.Evaluator, logger ectologger.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	return &Client{
		http:    httpClient,
		eval:    eval,
		logger:  logger,
		timeout: timeout,
	}
}

// LookupByPhone returns the first record whose phone normalizes to the same number,
// or nil when the external system has none. Variants of the phone are tried in order.
func (c *Client) LookupByPhone(ctx context.Context, tc *tenant.TenantContext, normalizedPhone string) (*ExternalRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ExternalClient.LookupByPhone")
	defer span.End()

	if !tc.HasCredentials() || tc.BaseURL == "" {
		return nil, ErrNoCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	record, err := c.lookup(ctx, tc, normalizedPhone)
	metrics.ExternalRequestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.ExternalRequestsTotal.WithLabelValues("error").Inc()
	case record == nil:
		metrics.ExternalRequestsTotal.WithLabelValues("no_match").Inc()
	default:
		metrics.ExternalRequestsTotal.WithLabelValues("match").Inc()
	}
	return record, err
}

func (c *Client) lookup(ctx context.Context, tc *tenant.TenantContext, normalizedPhone string) (*ExternalRecord, error) {
	mapping := ResolveMapping(tc.Tenant.FieldMapping.Data)
	variants := normalizers.PhoneVariants(normalizedPhone)
	accepted := ectolinq.Map(variants, normalizers.NormalizePhone)

	for _, variant := range variants {
		resp, err := c.http.Get(ctx, tc.BaseURL+clientsPath,
			httpclient.WithBasicAuth(tc.Credentials.Username, tc.Credentials.Password),
			httpclient.WithQueryParam(phoneFilterParam, variant),
		)
		if err != nil {
			return nil, fmt.Errorf("external lookup for tenant %s: %w", tc.Tenant.Slug, err)
		}

		if resp.StatusCode == http.StatusNotFound {
			continue
		}
		if !httpclient.IsSuccessStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}

		if err := httpclient.ParseJSON(resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		record, err := c.match(resp.BodyJSON, mapping, accepted)
		if err != nil {
			return nil, err
		}
		if record != nil {
			record.Phone = normalizedPhone
			c.logger.WithContext(ctx).WithFields(map[string]any{
				"tenant_id":   tc.Tenant.ID,
				"external_id": record.ExternalID,
			}).Debug("Found external record")
			return record, nil
		}
	}

	return nil, nil
}

func (c *Client) match(body any, mapping Mapping, accepted []string) (*ExternalRecord, error) {
	if body == nil {
		return nil, nil
	}

	items, err := c.eval.EvaluateSlice(mapping.Records, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		fields, err := c.extract(obj, mapping)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if fields.ExternalID == "" {
			continue
		}
		if !ectolinq.Contains(accepted, normalizers.NormalizePhone(fields.Phone)) {
			continue
		}
		return fields, nil
	}

	return nil, nil
}

func (c *Client) extract(obj map[string]any, mapping Mapping) (*ExternalRecord, error) {
	record := &ExternalRecord{}
	targets := []struct {
		field string
		expr  string
		dest  *string
	}{
		{FieldID, mapping.ID, &record.ExternalID},
		{FieldName, mapping.Name, &record.Name},
		{FieldPhone, mapping.Phone, &record.Phone},
		{FieldNationalID, mapping.NationalID, &record.NationalID},
		{FieldAssociationType, mapping.AssociationType, &record.AssociationCategory},
		{FieldResponsibleName, mapping.ResponsibleName, &record.ResponsibleName},
		{FieldResponsibleNationalID, mapping.ResponsibleNationalID, &record.ResponsibleNationalID},
	}
	for _, target := range targets {
		value, err := c.eval.EvaluateString(target.expr, obj)
		if err != nil {
			return nil, err
		}
		*target.dest = mapping.Normalize(target.field, value)
	}

	bag, err := c.eval.EvaluateMap(mapping.Attributes, obj)
	if err != nil {
		return nil, err
	}
	if bag == nil {
		bag = obj
	}
	record.Attributes = maps.Clone(bag)

	return record, nil
}
