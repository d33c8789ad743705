// Package arm talks to Azure Resource Manager: it counts the worker
// resources of a resource group, submits and polls deployments, and exports
// the template of the deployment that created the swarm.
package arm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

const (
	DefaultBaseURL      = "https://management.azure.com"
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	DefaultAPIVersion   = "2021-04-01"
	DefaultResourceType = "Microsoft.Compute/virtualMachines/extensions"
)

type Config struct {
	SubscriptionID   string
	TenantID         string
	ClientID         string
	ClientSecret     string
	BaseURL          string
	AuthorityURL     string
	APIVersion       string
	ResourceType     string
	SourceDeployment string
	Timeout          time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	var missing []string
	if cfg.SubscriptionID == "" {
		missing = append(missing, "subscription_id")
	}
	if cfg.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: arm client requires %s", models.ErrConfiguration, strings.Join(missing, ", "))
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthorityURL == "" {
		cfg.AuthorityURL = DefaultAuthorityURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.ResourceType == "" {
		cfg.ResourceType = DefaultResourceType
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.AuthorityURL = strings.TrimSuffix(cfg.AuthorityURL, "/")

	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", cfg.AuthorityURL, cfg.TenantID),
		Scopes:       []string{DefaultBaseURL + "/.default"},
	}

	base := &http.Client{Timeout: cfg.Timeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	httpClient := credentials.Client(tokenCtx)
	httpClient.Timeout = cfg.Timeout

	return &Client{config: cfg, httpClient: httpClient}, nil
}

func (c *Client) resourceGroupURL(resourceGroup string) string {
	return fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s",
		c.config.BaseURL, url.PathEscape(c.config.SubscriptionID), url.PathEscape(resourceGroup))
}

func (c *Client) deploymentURL(resourceGroup, name string) string {
	return fmt.Sprintf("%s/providers/Microsoft.Resources/deployments/%s",
		c.resourceGroupURL(resourceGroup), url.PathEscape(name))
}

func (c *Client) withVersion(rawURL string, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("api-version", c.config.APIVersion)
	return rawURL + "?" + q.Encode()
}

type resourceList struct {
	Value []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"value"`
	NextLink string `json:"nextLink"`
}

// ListResources counts the resources of the configured type in the
// resource group, following every result page.
func (c *Client) ListResources(ctx context.Context, resourceGroup string) (int, error) {
	filter := url.Values{}
	filter.Set("$filter", fmt.Sprintf("resourceType eq '%s'", c.config.ResourceType))
	next := c.withVersion(c.resourceGroupURL(resourceGroup)+"/resources", filter)

	count := 0
	for next != "" {
		var page resourceList
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return 0, err
		}
		count += len(page.Value)
		next = page.NextLink
	}

	logger.WithResourceGroup(resourceGroup).Debugf("Listed %d resources of type %s", count, c.config.ResourceType)
	return count, nil
}

// CreateOrUpdateDeployment submits a deployment. The call returns once ARM
// has accepted it; completion is observed with GetDeployment.
func (c *Client) CreateOrUpdateDeployment(ctx context.Context, resourceGroup, name string, body []byte) error {
	return c.do(ctx, http.MethodPut, c.withVersion(c.deploymentURL(resourceGroup, name), nil), body, nil)
}

type deployment struct {
	Name       string `json:"name"`
	Properties struct {
		ProvisioningState string                 `json:"provisioningState"`
		Timestamp         time.Time              `json:"timestamp"`
		Mode              string                 `json:"mode"`
		Parameters        map[string]interface{} `json:"parameters"`
	} `json:"properties"`
}

// GetDeployment returns the provisioning state reported for a deployment.
func (c *Client) GetDeployment(ctx context.Context, resourceGroup, name string) (string, error) {
	var d deployment
	if err := c.do(ctx, http.MethodGet, c.withVersion(c.deploymentURL(resourceGroup, name), nil), nil, &d); err != nil {
		return "", err
	}
	return d.Properties.ProvisioningState, nil
}

// FetchManifest builds a deployment request body from the template and
// parameters of the source deployment. Without a configured source the
// oldest deployment in the resource group is used.
func (c *Client) FetchManifest(ctx context.Context, resourceGroup string) ([]byte, error) {
	source, err := c.sourceDeployment(ctx, resourceGroup)
	if err != nil {
		return nil, err
	}

	var exported struct {
		Template json.RawMessage `json:"template"`
	}
	exportURL := c.withVersion(c.deploymentURL(resourceGroup, source.Name)+"/exportTemplate", nil)
	if err := c.do(ctx, http.MethodPost, exportURL, nil, &exported); err != nil {
		return nil, err
	}
	if len(exported.Template) == 0 {
		return nil, fmt.Errorf("%w: deployment %s exported an empty template", models.ErrConfiguration, source.Name)
	}

	params := make(map[string]interface{}, len(source.Properties.Parameters))
	for name, p := range source.Properties.Parameters {
		if entry, ok := p.(map[string]interface{}); ok {
			params[name] = map[string]interface{}{"value": entry["value"]}
		}
	}

	body := map[string]interface{}{
		"properties": map[string]interface{}{
			"mode":       "Incremental",
			"template":   exported.Template,
			"parameters": params,
		},
	}
	return json.Marshal(body)
}

func (c *Client) sourceDeployment(ctx context.Context, resourceGroup string) (*deployment, error) {
	if c.config.SourceDeployment != "" {
		var d deployment
		if err := c.do(ctx, http.MethodGet, c.withVersion(c.deploymentURL(resourceGroup, c.config.SourceDeployment), nil), nil, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}

	var list struct {
		Value []deployment `json:"value"`
	}
	listURL := c.withVersion(c.resourceGroupURL(resourceGroup)+"/providers/Microsoft.Resources/deployments", nil)
	if err := c.do(ctx, http.MethodGet, listURL, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Value) == 0 {
		return nil, fmt.Errorf("%w: resource group %s has no deployments to copy", models.ErrConfiguration, resourceGroup)
	}

	sort.Slice(list.Value, func(i, j int) bool {
		return list.Value[i].Properties.Timestamp.Before(list.Value[j].Properties.Timestamp)
	})
	return &list.Value[0], nil
}

// Close releases idle connections to ARM and Azure AD.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", models.ErrConfiguration, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", models.ErrTransport, method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", models.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error.Code != "" {
			return fmt.Errorf("%w: %s %s returned %d: %s: %s",
				models.ErrTransport, method, req.URL.Path, resp.StatusCode, ae.Error.Code, ae.Error.Message)
		}
		return fmt.Errorf("%w: %s %s returned %d", models.ErrTransport, method, req.URL.Path, resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: invalid response from %s: %v", models.ErrTransport, req.URL.Path, err)
	}
	return nil
}
