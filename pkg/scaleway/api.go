package scaleway

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/pkg/errors"
	iam "github.com/scaleway/scaleway-sdk-go/api/iam/v1alpha1"
	"github.com/scaleway/scaleway-sdk-go/api/instance/v1"
	"github.com/scaleway/scaleway-sdk-go/scw"
)

// API defaults
const (
	DefaultAPIURL = "https://api.scaleway.com"
	DefaultZone   = "fr-par-1"
)

// Server tags applied to provisioned instances
var ServerTags = []string{"managed-by:claude", "compliance:soc2-iso27001"}

// APIClient wraps the Scaleway IAM and Instance APIs for one zone
type APIClient struct {
	instance *instance.API
	iam      *iam.API
	zone     scw.Zone
	attempts uint
	delay    time.Duration
}

type apiOptions struct {
	apiURL     string
	zone       string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// APIOption configures an APIClient
type APIOption func(*apiOptions)

// WithAPIURL overrides the API endpoint
func WithAPIURL(u string) APIOption {
	return func(o *apiOptions) {
		if u != "" {
			o.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithZone overrides the availability zone
func WithZone(zone string) APIOption {
	return func(o *apiOptions) {
		if zone != "" {
			o.zone = zone
		}
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(h *http.Client) APIOption {
	return func(o *apiOptions) {
		o.httpClient = h
	}
}

// WithAPIRetry sets how transient API failures are retried
func WithAPIRetry(attempts uint, delay time.Duration) APIOption {
	return func(o *apiOptions) {
		o.attempts = attempts
		o.delay = delay
	}
}

// NewAPIClient creates a client authenticating with the access and secret key
func NewAPIClient(creds Credentials, opts ...APIOption) (*APIClient, error) {
	o := &apiOptions{
		apiURL:     DefaultAPIURL,
		zone:       DefaultZone,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		attempts:   3,
		delay:      time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	zone, err := scw.ParseZone(o.zone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid zone %q", o.zone)
	}
	client, err := scw.NewClient(
		scw.WithAuth(creds.AccessKey, creds.SecretKey),
		scw.WithAPIURL(o.apiURL),
		scw.WithDefaultZone(zone),
		scw.WithHTTPClient(o.httpClient),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Scaleway client")
	}

	return &APIClient{
		instance: instance.NewAPI(client),
		iam:      iam.NewAPI(client),
		zone:     zone,
		attempts: o.attempts,
		delay:    o.delay,
	}, nil
}

// Zone returns the zone the client targets
func (c *APIClient) Zone() string {
	return c.zone.String()
}

func retryable(err error) bool {
	var respErr *scw.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= 500
	}
	return false
}

// call runs one SDK request, retrying throttling and server errors
func (c *APIClient) call(ctx context.Context, fn func(opts ...scw.RequestOption) error) error {
	return retry.Do(
		func() error {
			err := fn(scw.WithContext(ctx))
			if err != nil && !retryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithField("attempt", n+1).WithError(err).Debug("retrying Scaleway API call")
		}),
	)
}

// ResourceRef points at the server a resource is attached to
type ResourceRef struct {
	ID   string
	Name string
}

// Server is an instance
type Server struct {
	ID    string
	Name  string
	State string
}

// IP is a flexible IP
type IP struct {
	ID      string
	Address string
	Server  *ResourceRef
}

// Volume is a block volume
type Volume struct {
	ID     string
	Name   string
	Server *ResourceRef
}

func refOf(s *instance.ServerSummary) *ResourceRef {
	if s == nil {
		return nil
	}
	return &ResourceRef{ID: s.ID, Name: s.Name}
}

func ipOf(ip *instance.IP) IP {
	out := IP{ID: ip.ID, Server: refOf(ip.Server)}
	if ip.Address != nil {
		out.Address = ip.Address.String()
	}
	return out
}

// ServerSpec describes a server to create
type ServerSpec struct {
	Name           string
	Project        string
	CommercialType string
	// Image is a marketplace label or an image ID
	Image      string
	EnableIPv6 bool
	BootType   instance.BootType
	Tags       []string
	// PublicIP is the ID of a flexible IP to attach at creation
	PublicIP string
}

// DefaultServerSpec is the single application server
func DefaultServerSpec(project string) ServerSpec {
	return ServerSpec{
		Name:           "app-server",
		Project:        project,
		CommercialType: "DEV1-S",
		Image:          "ubuntu_jammy",
		BootType:       instance.BootTypeLocal,
		Tags:           ServerTags,
	}
}

// CreateSSHKey registers a public key with IAM
func (c *APIClient) CreateSSHKey(ctx context.Context, name, publicKey, projectID string) error {
	return c.call(ctx, func(opts ...scw.RequestOption) error {
		_, err := c.iam.CreateSSHKey(&iam.CreateSSHKeyRequest{
			Name:      name,
			PublicKey: publicKey,
			ProjectID: projectID,
		}, opts...)
		return err
	})
}

// CreateIP reserves a flexible IP
func (c *APIClient) CreateIP(ctx context.Context, project string) (*IP, error) {
	var resp *instance.CreateIPResponse
	err := c.call(ctx, func(opts ...scw.RequestOption) (err error) {
		resp, err = c.instance.CreateIP(&instance.CreateIPRequest{
			Zone:    c.zone,
			Project: scw.StringPtr(project),
		}, opts...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create IP")
	}
	if resp.IP == nil {
		return nil, errors.New("failed to create IP: empty response")
	}
	ip := ipOf(resp.IP)
	return &ip, nil
}

// CreateServer creates a stopped server. Image labels are resolved to a
// local image through the marketplace.
func (c *APIClient) CreateServer(ctx context.Context, spec ServerSpec) (*Server, error) {
	req := &instance.CreateServerRequest{
		Zone:              c.zone,
		Name:              spec.Name,
		Project:           scw.StringPtr(spec.Project),
		CommercialType:    spec.CommercialType,
		Image:             scw.StringPtr(spec.Image),
		EnableIPv6:        scw.BoolPtr(spec.EnableIPv6),
		DynamicIPRequired: scw.BoolPtr(false),
		Tags:              spec.Tags,
	}
	if spec.BootType != "" {
		req.BootType = &spec.BootType
	}
	if spec.PublicIP != "" {
		req.PublicIP = scw.StringPtr(spec.PublicIP)
	}

	var resp *instance.CreateServerResponse
	err := c.call(ctx, func(opts ...scw.RequestOption) (err error) {
		resp, err = c.instance.CreateServer(req, opts...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}
	if resp.Server == nil {
		return nil, errors.New("failed to create server: empty response")
	}
	return &Server{ID: resp.Server.ID, Name: resp.Server.Name, State: resp.Server.State.String()}, nil
}

// SetCloudInit uploads cloud-init user data
func (c *APIClient) SetCloudInit(ctx context.Context, serverID, content string) error {
	return c.call(ctx, func(opts ...scw.RequestOption) error {
		return c.instance.SetServerUserData(&instance.SetServerUserDataRequest{
			Zone:     c.zone,
			ServerID: serverID,
			Key:      "cloud-init",
			Content:  bytes.NewBufferString(content),
		}, opts...)
	})
}

// ServerAction runs poweron, poweroff, reboot...
func (c *APIClient) ServerAction(ctx context.Context, serverID, action string) error {
	return c.call(ctx, func(opts ...scw.RequestOption) error {
		_, err := c.instance.ServerAction(&instance.ServerActionRequest{
			Zone:     c.zone,
			ServerID: serverID,
			Action:   instance.ServerAction(action),
		}, opts...)
		return err
	})
}

// ListServers lists the project's servers
func (c *APIClient) ListServers(ctx context.Context, project string) ([]Server, error) {
	var resp *instance.ListServersResponse
	err := c.call(ctx, func(opts ...scw.RequestOption) (err error) {
		resp, err = c.instance.ListServers(&instance.ListServersRequest{
			Zone:    c.zone,
			Project: scw.StringPtr(project),
		}, append(opts, scw.WithAllPages())...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list servers")
	}
	servers := make([]Server, 0, len(resp.Servers))
	for _, s := range resp.Servers {
		servers = append(servers, Server{ID: s.ID, Name: s.Name, State: s.State.String()})
	}
	return servers, nil
}

// ListIPs lists the project's flexible IPs
func (c *APIClient) ListIPs(ctx context.Context, project string) ([]IP, error) {
	var resp *instance.ListIPsResponse
	err := c.call(ctx, func(opts ...scw.RequestOption) (err error) {
		resp, err = c.instance.ListIPs(&instance.ListIPsRequest{
			Zone:    c.zone,
			Project: scw.StringPtr(project),
		}, append(opts, scw.WithAllPages())...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list IPs")
	}
	ips := make([]IP, 0, len(resp.IPs))
	for _, ip := range resp.IPs {
		ips = append(ips, ipOf(ip))
	}
	return ips, nil
}

// ListVolumes lists the project's volumes
func (c *APIClient) ListVolumes(ctx context.Context, project string) ([]Volume, error) {
	var resp *instance.ListVolumesResponse
	err := c.call(ctx, func(opts ...scw.RequestOption) (err error) {
		resp, err = c.instance.ListVolumes(&instance.ListVolumesRequest{
			Zone:    c.zone,
			Project: scw.StringPtr(project),
		}, append(opts, scw.WithAllPages())...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list volumes")
	}
	volumes := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		volumes = append(volumes, Volume{ID: v.ID, Name: v.Name, Server: refOf(v.Server)})
	}
	return volumes, nil
}

// DeleteServer deletes a stopped server
func (c *APIClient) DeleteServer(ctx context.Context, id string) error {
	return c.call(ctx, func(opts ...scw.RequestOption) error {
		return c.instance.DeleteServer(&instance.DeleteServerRequest{Zone: c.zone, ServerID: id}, opts...)
	})
}

// DeleteIP releases a flexible IP
func (c *APIClient) DeleteIP(ctx context.Context, id string) error {
	return c.call(ctx, func(opts ...scw.RequestOption) error {
		return c.instance.DeleteIP(&instance.DeleteIPRequest{Zone: c.zone, IP: id}, opts...)
	})
}

// DeleteVolume deletes a volume
func (c *APIClient) DeleteVolume(ctx context.Context, id string) error {
	return c.call(ctx, func(opts ...scw.RequestOption) error {
		return c.instance.DeleteVolume(&instance.DeleteVolumeRequest{Zone: c.zone, VolumeID: id}, opts...)
	})
}
