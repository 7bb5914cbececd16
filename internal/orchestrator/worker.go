package orchestrator

import "strings"

// JobSpec describes one worker job the supervisor should ensure exists.
// Env carries connection strings and secrets as the spec requires (§4.H.5).
type JobSpec struct {
	Name  string
	Image string
	Env   map[string]string
}

// ServiceSpec describes the ClusterIP service paired with a processor job.
type ServiceSpec struct {
	Name      string
	TargetJob string
	Port      int
}

// WorkerSupervisor abstracts worker job/service lifecycle for testability,
// the same seam the teacher draws around tmux (orchestration/tmux.go):
// one interface, a real adapter that shells out to an external binary, and
// a no-op stub swapped in under the unittest build tag.
type WorkerSupervisor interface {
	JobExists(name string) bool
	CreateJob(spec JobSpec) error
	DeleteJob(name string) error
	ListJobs() ([]string, error)

	ServiceExists(name string) bool
	CreateService(spec ServiceSpec) error
	DeleteService(name string) error
	ListServices() ([]string, error)
}

// DefaultSupervisor is the supervisor used when Config.Supervisor is nil.
// RealSupervisor is defined in worker_real.go (excluded from unittest builds).
var DefaultSupervisor WorkerSupervisor = RealSupervisor{}

// jobNameContains reports whether a job name belongs to the given event,
// per §4.H.3/4's "name contains evt-{event-id}" matching rule.
func jobNameContains(jobName string, eventID uint) bool {
	return strings.Contains(jobName, eventMarker(eventID))
}
