//go:build unittest

package orchestrator

// RealSupervisor is a no-op stub used during unit testing (build tag:
// unittest). The real implementation is in worker_real.go.
type RealSupervisor struct {
	Namespace string
}

func (RealSupervisor) JobExists(name string) bool            { return false }
func (RealSupervisor) CreateJob(spec JobSpec) error           { return nil }
func (RealSupervisor) DeleteJob(name string) error            { return nil }
func (RealSupervisor) ListJobs() ([]string, error)            { return nil, nil }
func (RealSupervisor) ServiceExists(name string) bool         { return false }
func (RealSupervisor) CreateService(spec ServiceSpec) error   { return nil }
func (RealSupervisor) DeleteService(name string) error        { return nil }
func (RealSupervisor) ListServices() ([]string, error)        { return nil, nil }
