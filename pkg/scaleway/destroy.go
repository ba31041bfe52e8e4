package scaleway

import (
	"context"
	"os"
	"time"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/secrets"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DestroyConfirmation must be typed to confirm a destroy
const DestroyConfirmation = "destroy"

// DestroyOptions configures a teardown
type DestroyOptions struct {
	Repo            string
	ProjectID       string
	CacheDir        string
	KeepCredentials bool
	// PowerOffWait is how long to wait between poweroff and delete
	PowerOffWait time.Duration
}

// DestroyResult reports what was removed
type DestroyResult struct {
	Servers []string
	IPs     []string
	Volumes []string
	Secrets []string
}

// Empty is true when the project held no resources
func (r *DestroyResult) Empty() bool {
	return len(r.Servers)+len(r.IPs)+len(r.Volumes) == 0
}

// Destroyer tears down every server, IP and volume of a project
type Destroyer struct {
	api   *APIClient
	store secrets.Store
}

// NewDestroyer creates a Destroyer; store may be nil to leave GitHub alone
func NewDestroyer(api *APIClient, store secrets.Store) *Destroyer {
	return &Destroyer{api: api, store: store}
}

// Destroy deletes servers first, then the IPs and volumes they released.
// Individual failures are collected and do not stop the teardown.
func (d *Destroyer) Destroy(ctx context.Context, opts DestroyOptions) (*DestroyResult, error) {
	result := &DestroyResult{}
	var errs *multierror.Error

	servers, err := d.api.ListServers(ctx, opts.ProjectID)
	if err != nil {
		return result, err
	}

	for _, srv := range servers {
		log := logger.G(ctx).WithField("server", srv.Name)
		if err := d.api.ServerAction(ctx, srv.ID, "poweroff"); err != nil {
			log.WithError(err).Warn("poweroff failed")
		}
		if opts.PowerOffWait > 0 {
			if err := sleepCtx(ctx, opts.PowerOffWait); err != nil {
				return result, err
			}
		}
		if err := d.api.DeleteServer(ctx, srv.ID); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "failed to delete server %s", srv.Name))
			continue
		}
		log.Info("deleted server")
		result.Servers = append(result.Servers, srv.Name)
	}

	// Listed after the servers are gone so released IPs and volumes count as unattached
	ips, err := d.api.ListIPs(ctx, opts.ProjectID)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, ip := range ips {
		if ip.Server != nil {
			continue
		}
		if err := d.api.DeleteIP(ctx, ip.ID); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "failed to delete IP %s", ip.Address))
			continue
		}
		result.IPs = append(result.IPs, ip.Address)
	}

	volumes, err := d.api.ListVolumes(ctx, opts.ProjectID)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, v := range volumes {
		if v.Server != nil {
			continue
		}
		if err := d.api.DeleteVolume(ctx, v.ID); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "failed to delete volume %s", v.Name))
			continue
		}
		result.Volumes = append(result.Volumes, v.Name)
	}

	if err := d.clearSecrets(ctx, opts, result); err != nil {
		errs = multierror.Append(errs, err)
	}

	if opts.CacheDir != "" {
		if err := os.RemoveAll(opts.CacheDir); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "failed to clear cache"))
		}
	}
	return result, errs.ErrorOrNil()
}

func (d *Destroyer) clearSecrets(ctx context.Context, opts DestroyOptions, result *DestroyResult) error {
	if d.store == nil {
		return nil
	}
	names := []string{SecretServerIP}
	if !opts.KeepCredentials {
		names = append(names, SecretAccessKey, SecretSecretKey, SecretProjectID, SecretPrivateKey, SecretPublicKey)
	}

	existing, err := d.store.List(ctx, opts.Repo)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	var errs *multierror.Error
	for _, name := range names {
		if !have[name] {
			continue
		}
		if err := d.store.Delete(ctx, opts.Repo, name); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		result.Secrets = append(result.Secrets, name)
	}
	return errs.ErrorOrNil()
}
