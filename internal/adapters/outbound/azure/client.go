// Package azure talks to the Azure Resource Manager REST API to read and
// resize the agent pool of a container service. Authentication uses a
// service principal via the OAuth2 client-credentials flow.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/kubescaler/agentpool-autoscaler/internal/logic/scaler"
)

const (
	defaultEndpoint = "https://management.azure.com"
	tokenURLFormat  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	apiVersion      = "2017-07-01"

	// ARM deduplicates mutations carrying the same client request id, which
	// makes SetPoolSize idempotent per correlation id.
	headerClientRequestID       = "x-ms-client-request-id"
	headerReturnClientRequestID = "x-ms-return-client-request-id"
)

// Credentials are the service-principal credentials for the control API.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Client resizes the agent pool of one container service.
type Client struct {
	logger           *slog.Logger
	httpClient       *http.Client
	endpoint         string
	subscriptionID   string
	resourceGroup    string
	containerService string
}

// NewClient creates a provider client authenticated with the given service
// principal.
func NewClient(
	logger *slog.Logger,
	creds Credentials,
	subscriptionID,
	resourceGroup,
	containerService string,
) *Client {
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFormat, creds.TenantID),
		Scopes:       []string{defaultEndpoint + "/.default"},
	}

	return newClient(
		logger,
		cc.Client(context.Background()),
		defaultEndpoint,
		subscriptionID,
		resourceGroup,
		containerService,
	)
}

// newClient wires an explicit transport and endpoint; tests use it directly.
func newClient(
	logger *slog.Logger,
	httpClient *http.Client,
	endpoint,
	subscriptionID,
	resourceGroup,
	containerService string,
) *Client {
	return &Client{
		logger:           logger,
		httpClient:       httpClient,
		endpoint:         endpoint,
		subscriptionID:   subscriptionID,
		resourceGroup:    resourceGroup,
		containerService: containerService,
	}
}

var _ scaler.Provider = (*Client)(nil)

// CurrentSize returns the authoritative agent pool size.
func (c *Client) CurrentSize(ctx context.Context) (int, error) {
	instance, err := c.getInstance(ctx)
	if err != nil {
		return 0, err
	}

	count, err := agentPoolCount(instance)
	if err != nil {
		return 0, fmt.Errorf("current size: %w", err)
	}

	return count, nil
}

// SetPoolSize sets the agent pool to target. The correlation id travels as
// the ARM client request id, so re-issuing the same target with the same id
// does not double-scale.
func (c *Client) SetPoolSize(ctx context.Context, target int, correlationID string) error {
	instance, err := c.getInstance(ctx)
	if err != nil {
		return err
	}

	if err := setAgentPoolCount(instance, target); err != nil {
		return fmt.Errorf("set pool size: %w", err)
	}

	body, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("marshal container service: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resourceURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerClientRequestID, correlationID)
	req.Header.Set(headerReturnClientRequestID, "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("update container service: %w", err)}
	}

	defer drainAndClose(resp.Body)

	if err := c.classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "agent pool update accepted",
		"target", target,
		"correlationID", correlationID,
		"status", resp.StatusCode,
	)

	return nil
}

// getInstance fetches the raw container service document. It is carried as a
// generic map so unknown fields survive the read-modify-write round trip.
func (c *Client) getInstance(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resourceURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build get request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("get container service: %w", err)}
	}

	defer drainAndClose(resp.Body)

	if err := c.classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var instance map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&instance); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decode container service: %w", err)}
	}

	return instance, nil
}

func (c *Client) resourceURL() string {
	return fmt.Sprintf(
		"%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.ContainerService/containerServices/%s?api-version=%s",
		c.endpoint, c.subscriptionID, c.resourceGroup, c.containerService, apiVersion,
	)
}

func (c *Client) classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthFailureError{Status: status}
	case status == http.StatusNotFound:
		return &NotFoundError{Resource: c.resourceGroup + "/" + c.containerService}
	case status == http.StatusTooManyRequests:
		return &ThrottledError{Status: status}
	default:
		return &TransientError{Status: status}
	}
}

// agentPoolCount reads properties.agentPoolProfiles[0].count. Only one agent
// pool is supported on ACS.
func agentPoolCount(instance map[string]any) (int, error) {
	profile, err := firstAgentPoolProfile(instance)
	if err != nil {
		return 0, err
	}

	count, ok := profile["count"].(float64)
	if !ok {
		return 0, fmt.Errorf("agent pool profile has no numeric count")
	}

	return int(count), nil
}

func setAgentPoolCount(instance map[string]any, target int) error {
	profile, err := firstAgentPoolProfile(instance)
	if err != nil {
		return err
	}

	profile["count"] = target

	// The service principal profile fails server-side validation when echoed
	// back, so it is stripped from the update.
	if properties, ok := instance["properties"].(map[string]any); ok {
		delete(properties, "servicePrincipalProfile")
	}

	return nil
}

func firstAgentPoolProfile(instance map[string]any) (map[string]any, error) {
	properties, ok := instance["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("container service has no properties")
	}

	profiles, ok := properties["agentPoolProfiles"].([]any)
	if !ok || len(profiles) == 0 {
		return nil, fmt.Errorf("container service has no agent pool profiles")
	}

	profile, ok := profiles[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("malformed agent pool profile")
	}

	return profile, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
