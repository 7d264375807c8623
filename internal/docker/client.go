// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package docker

import (
	"context"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
)

var (
	log          = logger.GetLogger("docker")
	dockerClient client.APIClient
)

// InitClient creates the docker client from the DOCKER_* environment.
func InitClient() error {
	cl, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Wrap(err, "failed to create docker client")
	}
	dockerClient = cl
	return nil
}

func SetClient(cl client.APIClient) {
	dockerClient = cl
}

func GetClient() client.APIClient { return dockerClient }

// PIDResolver finds the init process of a container, the handle used to
// enter its network namespace.
type PIDResolver interface {
	ContainerPID(ctx context.Context, name string) (int, error)
}

// Resolver looks containers up with the global docker client.
type Resolver struct{}

// ContainerPID returns the PID of a running container. A missing or stopped
// container yields 0 and no error.
func (Resolver) ContainerPID(ctx context.Context, name string) (int, error) {
	cl := GetClient()
	if cl == nil {
		return 0, errors.New("docker client is not initialized")
	}
	info, err := cl.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			log.Warnf("Container %s does not exist", name)
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to inspect container %s", name)
	}
	if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
		log.Errorf("Container %s is not running", name)
		return 0, nil
	}
	return info.State.Pid, nil
}

// StaticResolver serves fixed PIDs, for tests and dry runs.
type StaticResolver map[string]int

func (s StaticResolver) ContainerPID(_ context.Context, name string) (int, error) {
	return s[name], nil
}
