//go:build !unittest

package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// RealSupervisor is the production implementation, driving worker jobs and
// services through the kubectl binary the way RealTmux drives tmux: shelled
// subprocess calls rather than an in-process client SDK, since a Kubernetes
// client surface is explicitly out of scope here.
type RealSupervisor struct {
	Namespace string // defaults to "default" when empty
}

func (s RealSupervisor) namespace() string {
	if s.Namespace == "" {
		return "default"
	}
	return s.Namespace
}

func (s RealSupervisor) JobExists(name string) bool {
	cmd := exec.Command("kubectl", "get", "job", name, "-n", s.namespace())
	return cmd.Run() == nil
}

func (s RealSupervisor) CreateJob(spec JobSpec) error {
	manifest, err := jobManifest(s.namespace(), spec)
	if err != nil {
		return fmt.Errorf("orchestrator: build job manifest for %s: %w", spec.Name, err)
	}
	cmd := exec.Command("kubectl", "apply", "-f", "-")
	cmd.Stdin = bytes.NewReader(manifest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("orchestrator: create job %s: %s: %w", spec.Name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s RealSupervisor) DeleteJob(name string) error {
	cmd := exec.Command("kubectl", "delete", "job", name, "-n", s.namespace(), "--ignore-not-found")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("orchestrator: delete job %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s RealSupervisor) ListJobs() ([]string, error) {
	cmd := exec.Command("kubectl", "get", "jobs", "-n", s.namespace(), "-o", "jsonpath={.items[*].metadata.name}")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list jobs: %w", err)
	}
	return strings.Fields(string(out)), nil
}

func (s RealSupervisor) ServiceExists(name string) bool {
	cmd := exec.Command("kubectl", "get", "service", name, "-n", s.namespace())
	return cmd.Run() == nil
}

func (s RealSupervisor) CreateService(spec ServiceSpec) error {
	manifest, err := serviceManifest(s.namespace(), spec)
	if err != nil {
		return fmt.Errorf("orchestrator: build service manifest for %s: %w", spec.Name, err)
	}
	cmd := exec.Command("kubectl", "apply", "-f", "-")
	cmd.Stdin = bytes.NewReader(manifest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("orchestrator: create service %s: %s: %w", spec.Name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s RealSupervisor) DeleteService(name string) error {
	cmd := exec.Command("kubectl", "delete", "service", name, "-n", s.namespace(), "--ignore-not-found")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("orchestrator: delete service %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s RealSupervisor) ListServices() ([]string, error) {
	cmd := exec.Command("kubectl", "get", "services", "-n", s.namespace(), "-o", "jsonpath={.items[*].metadata.name}")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list services: %w", err)
	}
	return strings.Fields(string(out)), nil
}

func jobManifest(namespace string, spec JobSpec) ([]byte, error) {
	env := make([]map[string]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, map[string]string{"name": k, "value": v})
	}
	doc := map[string]any{
		"apiVersion": "batch/v1",
		"kind":       "Job",
		"metadata":   map[string]any{"name": spec.Name, "namespace": namespace},
		"spec": map[string]any{
			"template": map[string]any{
				"spec": map[string]any{
					"restartPolicy": "OnFailure",
					"containers": []map[string]any{{
						"name":  spec.Name,
						"image": spec.Image,
						"env":   env,
					}},
				},
			},
		},
	}
	return json.Marshal(doc)
}

func serviceManifest(namespace string, spec ServiceSpec) ([]byte, error) {
	doc := map[string]any{
		"apiVersion": "v1",
		"kind":       "Service",
		"metadata":   map[string]any{"name": spec.Name, "namespace": namespace},
		"spec": map[string]any{
			"type":     "ClusterIP",
			"selector": map[string]any{"job-name": spec.TargetJob},
			"ports":    []map[string]any{{"port": spec.Port, "targetPort": spec.Port}},
		},
	}
	return json.Marshal(doc)
}
